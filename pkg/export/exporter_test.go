package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zer0complexity/killicker/pkg/geo"
	"github.com/zer0complexity/killicker/pkg/model"
)

func testTrack(t *testing.T, n int) model.Track {
	t.Helper()
	start, err := time.Parse(time.RFC3339, "2025-08-21T09:00:00Z")
	require.NoError(t, err)

	track := make(model.Track, 0, n)
	for i := 0; i < n; i++ {
		track = append(track, model.Keyframe{
			Timestamp: start.Add(time.Duration(i) * 10 * time.Minute),
			Fields:    map[string]float64{model.FieldSOG: 3.1, model.FieldCOG: 1.2},
			Position:  geo.Point{Lat: 49.02 + float64(i)*0.01, Lng: -58.63},
			Distance:  float64(i) * 1100,
		})
	}
	return track
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// readUpdate and readIndex decode into fresh values on every call; reusing
// one struct across reads would carry stale pointer fields past keys the
// file no longer contains.
func readUpdate(t *testing.T, dir string) updateInfo {
	t.Helper()
	var update updateInfo
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "update.json")), &update))
	return update
}

func readIndex(t *testing.T, dir string) tracksIndex {
	t.Helper()
	var index tracksIndex
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "tracks.json")), &index))
	return index
}

func TestWriteTrack(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.WriteTrack("20250821-0900", testTrack(t, 3)))

	data := readFile(t, filepath.Join(dir, "20250821-0900.json"))
	assert.True(t, strings.HasSuffix(string(data), "\n"), "file should end with a newline")
	assert.Contains(t, string(data), "    \"points\"", "file should use 4-space indentation")

	var tf trackFile
	require.NoError(t, json.Unmarshal(data, &tf))
	require.Len(t, tf.Points, 3)
	assert.Equal(t, 49.02, tf.Points[0].Position.Lat)

	var index tracksIndex
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "tracks.json")), &index))
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, "20250821-0900", index.Tracks[0].ID)
	assert.Equal(t, 3, index.Tracks[0].PointCount)

	var update updateInfo
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "update.json")), &update))
	require.NotNil(t, update.Tracks)
	assert.NotEmpty(t, update.Tracks.Edited)
	assert.Nil(t, update.Live)
}

func TestWriteTrackOverwritesIndexEntry(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.WriteTrack("a", testTrack(t, 2)))
	require.NoError(t, e.WriteTrack("a", testTrack(t, 5)))

	var index tracksIndex
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "tracks.json")), &index))
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, 5, index.Tracks[0].PointCount)
}

func TestExtendTrack(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.WriteTrack("a", testTrack(t, 2)))
	require.NoError(t, e.ExtendTrack("a", testTrack(t, 3), true))

	var tf trackFile
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "a.json")), &tf))
	assert.Len(t, tf.Points, 5)

	var index tracksIndex
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "tracks.json")), &index))
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, 5, index.Tracks[0].PointCount)
}

func TestLiveTrackLifecycle(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.StartLiveTrack("live-1"))

	update := readUpdate(t, dir)
	require.NotNil(t, update.Live)
	assert.Equal(t, "live-1", update.Live.ID)
	assert.Equal(t, 0, update.Live.PointCount)

	// While live, extends bump the live counter but leave the index at 0.
	require.NoError(t, e.ExtendTrack("live-1", testTrack(t, 4), false))

	update = readUpdate(t, dir)
	require.NotNil(t, update.Live)
	assert.Equal(t, 4, update.Live.PointCount)

	index := readIndex(t, dir)
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, 0, index.Tracks[0].PointCount)

	// Ending folds the live count back into the index.
	require.NoError(t, e.EndLiveTrack())

	update = readUpdate(t, dir)
	assert.Nil(t, update.Live)

	index = readIndex(t, dir)
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, 4, index.Tracks[0].PointCount)
}

func TestEndLiveTrackWithoutLive(t *testing.T) {
	e := New(t.TempDir())
	assert.NoError(t, e.EndLiveTrack())
}

func TestRemoveTrack(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.WriteTrack("a", testTrack(t, 2)))
	require.NoError(t, e.WriteTrack("b", testTrack(t, 3)))
	require.NoError(t, e.RemoveTrack("a"))

	_, err := os.Stat(filepath.Join(dir, "a.json"))
	assert.True(t, os.IsNotExist(err))

	var index tracksIndex
	require.NoError(t, json.Unmarshal(readFile(t, filepath.Join(dir, "tracks.json")), &index))
	require.Len(t, index.Tracks, 1)
	assert.Equal(t, "b", index.Tracks[0].ID)
}

func TestRemoveMissingTrack(t *testing.T) {
	e := New(t.TempDir())
	assert.NoError(t, e.RemoveTrack("nope"))
}

func TestWriteGeoJSON(t *testing.T) {
	dir := t.TempDir()
	e := New(dir)

	require.NoError(t, e.WriteGeoJSON("a", testTrack(t, 3)))

	data := readFile(t, filepath.Join(dir, "a.geojson"))
	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string      `json:"type"`
				Coordinates [][]float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "LineString", fc.Features[0].Geometry.Type)
	require.Len(t, fc.Features[0].Geometry.Coordinates, 3)
	// GeoJSON is lng-first
	assert.Equal(t, -58.63, fc.Features[0].Geometry.Coordinates[0][0])
	assert.Equal(t, 49.02, fc.Features[0].Geometry.Coordinates[0][1])
	assert.Equal(t, "a", fc.Features[0].Properties["id"])
}
