package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zer0complexity/killicker/pkg/geo"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestKeyframeMarshalFieldOrder(t *testing.T) {
	kf := Keyframe{
		Timestamp: ts("2025-08-21T09:10:00Z"),
		Fields: map[string]float64{
			FieldDepth: 12.4,
			FieldAWS:   6.1,
			FieldSOG:   3.2,
			FieldCOG:   1.5708,
			FieldAWA:   -0.7,
		},
		Position: geo.Point{Lat: 49.0205, Lng: -58.6352},
		Distance: 1523.7,
	}

	data, err := json.Marshal(kf)
	require.NoError(t, err)

	s := string(data)
	want := []string{`"timestamp"`, `"SOG"`, `"COG"`, `"AWA"`, `"AWS"`, `"Depth"`, `"position"`, `"Distance"`}
	last := -1
	for _, key := range want {
		idx := strings.Index(s, key)
		require.GreaterOrEqual(t, idx, 0, "missing key %s in %s", key, s)
		assert.Greater(t, idx, last, "key %s out of order in %s", key, s)
		last = idx
	}
}

func TestKeyframeMarshalPartial(t *testing.T) {
	kf := Keyframe{
		Timestamp: ts("2025-08-21T09:13:20Z"),
		Fields:    map[string]float64{FieldCOG: 0.1},
		Position:  geo.Point{Lat: 49.03, Lng: -58.61},
		Distance:  211.0,
	}

	data, err := json.Marshal(kf)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))

	assert.Contains(t, m, "COG")
	assert.Contains(t, m, "position")
	assert.Contains(t, m, "Distance")
	// Absent optional fields stay absent, never fabricated
	for _, absent := range []string{"SOG", "AWA", "AWS", "Depth"} {
		assert.NotContains(t, m, absent)
	}
}

func TestKeyframeTimestampFormat(t *testing.T) {
	kf := Keyframe{
		Timestamp: ts("2025-08-21T09:10:00Z"),
		Position:  geo.Point{Lat: 1, Lng: 2},
	}
	data, err := json.Marshal(kf)
	require.NoError(t, err)

	// Explicit UTC offset, not "Z"
	assert.Contains(t, string(data), `"timestamp":"2025-08-21T09:10:00+00:00"`)
}

func TestKeyframeRoundTrip(t *testing.T) {
	in := Keyframe{
		Timestamp: ts("2025-08-21T09:10:00Z"),
		Fields: map[string]float64{
			FieldSOG:   3.2,
			FieldCOG:   1.5708,
			FieldDepth: 12.4,
		},
		Position: geo.Point{Lat: 49.0205, Lng: -58.6352},
		Distance: 1523.7,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out Keyframe
	require.NoError(t, json.Unmarshal(data, &out))

	assert.True(t, in.Timestamp.Equal(out.Timestamp))
	assert.Equal(t, in.Fields, out.Fields)
	assert.Equal(t, in.Position, out.Position)
	assert.Equal(t, in.Distance, out.Distance)
}

func TestMergedRecordPosition(t *testing.T) {
	r := MergedRecord{
		Timestamp: ts("2025-08-21T09:10:00Z"),
		Fields:    map[string]float64{ChannelLat: 49.0, FieldSOG: 3.0},
	}
	if _, ok := r.Position(); ok {
		t.Fatal("record missing lng must not report a position")
	}

	r.Fields[ChannelLng] = -58.6
	pos, ok := r.Position()
	require.True(t, ok)
	assert.Equal(t, geo.Point{Lat: 49.0, Lng: -58.6}, pos)
}
