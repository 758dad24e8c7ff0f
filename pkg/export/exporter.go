package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/zer0complexity/killicker/pkg/model"
)

// Exporter persists tracks as JSON files in a data directory, alongside a
// tracks.json index and an update.json bookkeeping file that the map UI
// polls. The core hands it finished keyframe sequences; it never touches
// reduction state.
type Exporter struct {
	dataDir    string
	updatePath string
	tracksPath string
}

// New creates an Exporter rooted at dataDir. The directory is created on
// first write.
func New(dataDir string) *Exporter {
	return &Exporter{
		dataDir:    dataDir,
		updatePath: filepath.Join(dataDir, "update.json"),
		tracksPath: filepath.Join(dataDir, "tracks.json"),
	}
}

type trackFile struct {
	Points model.Track `json:"points"`
}

type trackEntry struct {
	ID         string `json:"id"`
	PointCount int    `json:"pointCount"`
}

type tracksIndex struct {
	Tracks []trackEntry `json:"tracks"`
}

type tracksMeta struct {
	Edited string `json:"edited"`
}

type liveEntry struct {
	ID         string `json:"id"`
	PointCount int    `json:"pointCount"`
}

type updateInfo struct {
	Tracks *tracksMeta `json:"tracks,omitempty"`
	Live   *liveEntry  `json:"live,omitempty"`
}

// WriteTrack writes (or overwrites) a complete track and updates the index.
func (e *Exporter) WriteTrack(trackID string, points model.Track) error {
	if err := e.writeJSON(e.trackPath(trackID), trackFile{Points: points}); err != nil {
		return fmt.Errorf("failed to write track %s: %w", trackID, err)
	}
	return e.UpdateTracksIndex(trackID, len(points))
}

// ExtendTrack appends points to an existing track file (creating it if
// needed). With updateIndex false the track is treated as live: only the
// live entry's point count in update.json is refreshed.
func (e *Exporter) ExtendTrack(trackID string, points model.Track, updateIndex bool) error {
	path := e.trackPath(trackID)

	var tf trackFile
	if err := e.readJSON(path, &tf); err != nil {
		return fmt.Errorf("failed to read track %s: %w", trackID, err)
	}
	tf.Points = append(tf.Points, points...)

	if err := e.writeJSON(path, tf); err != nil {
		return fmt.Errorf("failed to extend track %s: %w", trackID, err)
	}
	slog.Debug("Track extended", "track", trackID, "points", len(tf.Points))

	if updateIndex {
		return e.UpdateTracksIndex(trackID, len(tf.Points))
	}
	return e.setLivePointCount(trackID, len(tf.Points))
}

// UpdateTracksIndex upserts the track's entry in tracks.json and stamps the
// index edit time into update.json.
func (e *Exporter) UpdateTracksIndex(trackID string, pointCount int) error {
	var index tracksIndex
	if err := e.readJSON(e.tracksPath, &index); err != nil {
		return fmt.Errorf("failed to read tracks index: %w", err)
	}

	if entry := findTrack(index.Tracks, trackID); entry != nil {
		entry.PointCount = pointCount
	} else {
		index.Tracks = append(index.Tracks, trackEntry{ID: trackID, PointCount: pointCount})
	}

	if err := e.writeJSON(e.tracksPath, index); err != nil {
		return fmt.Errorf("failed to write tracks index: %w", err)
	}

	var update updateInfo
	if err := e.readJSON(e.updatePath, &update); err != nil {
		return fmt.Errorf("failed to read update file: %w", err)
	}
	update.Tracks = &tracksMeta{Edited: time.Now().UTC().Format(model.TimeLayout)}
	if err := e.writeJSON(e.updatePath, update); err != nil {
		return fmt.Errorf("failed to write update file: %w", err)
	}

	slog.Info("Tracks index updated", "track", trackID, "points", pointCount)
	return nil
}

// StartLiveTrack registers trackID as the live track. The index shows 0
// points while live; the real count is carried in update.json until the
// session ends.
func (e *Exporter) StartLiveTrack(trackID string) error {
	var index tracksIndex
	if err := e.readJSON(e.tracksPath, &index); err != nil {
		return fmt.Errorf("failed to read tracks index: %w", err)
	}

	previousCount := 0
	if entry := findTrack(index.Tracks, trackID); entry != nil {
		previousCount = entry.PointCount
	}

	if err := e.UpdateTracksIndex(trackID, 0); err != nil {
		return err
	}

	var update updateInfo
	if err := e.readJSON(e.updatePath, &update); err != nil {
		return fmt.Errorf("failed to read update file: %w", err)
	}
	update.Live = &liveEntry{ID: trackID, PointCount: previousCount}
	if err := e.writeJSON(e.updatePath, update); err != nil {
		return fmt.Errorf("failed to write update file: %w", err)
	}

	slog.Info("Live track started", "track", trackID)
	return nil
}

// EndLiveTrack removes the live entry from update.json and folds its point
// count back into tracks.json.
func (e *Exporter) EndLiveTrack() error {
	var update updateInfo
	if err := e.readJSON(e.updatePath, &update); err != nil {
		return fmt.Errorf("failed to read update file: %w", err)
	}
	if update.Live == nil {
		slog.Info("No live track to end")
		return nil
	}

	trackID := update.Live.ID
	pointCount := update.Live.PointCount
	update.Live = nil
	if err := e.writeJSON(e.updatePath, update); err != nil {
		return fmt.Errorf("failed to write update file: %w", err)
	}

	var index tracksIndex
	if err := e.readJSON(e.tracksPath, &index); err != nil {
		return fmt.Errorf("failed to read tracks index: %w", err)
	}
	if entry := findTrack(index.Tracks, trackID); entry != nil {
		entry.PointCount = pointCount
		if err := e.writeJSON(e.tracksPath, index); err != nil {
			return fmt.Errorf("failed to write tracks index: %w", err)
		}
	}

	slog.Info("Live track ended", "track", trackID, "points", pointCount)
	return nil
}

// RemoveTrack deletes a track file and its index entry.
func (e *Exporter) RemoveTrack(trackID string) error {
	path := e.trackPath(trackID)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Info("Track file not found, nothing to remove", "path", path)
		} else {
			return fmt.Errorf("failed to remove track file %s: %w", path, err)
		}
	}

	var index tracksIndex
	if err := e.readJSON(e.tracksPath, &index); err != nil {
		return fmt.Errorf("failed to read tracks index: %w", err)
	}
	kept := index.Tracks[:0]
	for _, entry := range index.Tracks {
		if entry.ID != trackID {
			kept = append(kept, entry)
		}
	}
	index.Tracks = kept

	if err := e.writeJSON(e.tracksPath, index); err != nil {
		return fmt.Errorf("failed to write tracks index: %w", err)
	}
	slog.Info("Track removed", "track", trackID)
	return nil
}

// WriteGeoJSON renders the track as a GeoJSON LineString feature next to
// the regular track file, for tools that speak GeoJSON rather than the
// map UI's point format.
func (e *Exporter) WriteGeoJSON(trackID string, points model.Track) error {
	ls := make(orb.LineString, 0, len(points))
	for _, p := range points {
		ls = append(ls, orb.Point{p.Position.Lng, p.Position.Lat})
	}

	feature := geojson.NewFeature(ls)
	feature.Properties["id"] = trackID
	feature.Properties["pointCount"] = len(points)
	if len(points) > 0 {
		feature.Properties["start"] = points[0].Timestamp.Format(model.TimeLayout)
		feature.Properties["end"] = points[len(points)-1].Timestamp.Format(model.TimeLayout)
		feature.Properties["distance"] = points[len(points)-1].Distance
	}

	fc := geojson.NewFeatureCollection()
	fc.Append(feature)

	return e.writeJSON(filepath.Join(e.dataDir, trackID+".geojson"), fc)
}

func (e *Exporter) trackPath(trackID string) string {
	return filepath.Join(e.dataDir, trackID+".json")
}

func findTrack(tracks []trackEntry, trackID string) *trackEntry {
	for i := range tracks {
		if tracks[i].ID == trackID {
			return &tracks[i]
		}
	}
	return nil
}

// setLivePointCount refreshes the live entry's point count after a live
// extend. A mismatching live id is logged, not fatal.
func (e *Exporter) setLivePointCount(trackID string, pointCount int) error {
	var update updateInfo
	if err := e.readJSON(e.updatePath, &update); err != nil {
		return fmt.Errorf("failed to read update file: %w", err)
	}
	if update.Live == nil || update.Live.ID != trackID {
		slog.Warn("Live track id mismatch when updating point count", "track", trackID)
		return nil
	}
	update.Live.PointCount = pointCount
	return e.writeJSON(e.updatePath, update)
}

// readJSON decodes path into v. A missing file is not an error: v keeps its
// zero value, matching a fresh data directory.
func (e *Exporter) readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("JSON file not found, using defaults", "path", path)
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON writes v to path with 4-space indentation and a trailing
// newline, the format the rest of the toolchain expects.
func (e *Exporter) writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
