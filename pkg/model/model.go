package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zer0complexity/killicker/pkg/geo"
)

// Canonical field names, as they appear in exported track points.
const (
	FieldSOG   = "SOG"   // speed over ground, m/s
	FieldCOG   = "COG"   // course over ground (true), radians
	FieldAWA   = "AWA"   // apparent wind angle, radians
	FieldAWS   = "AWS"   // apparent wind speed, m/s
	FieldDepth = "Depth" // depth below transducer, meters
)

// Position channels. They are merged pairwise into a position; neither is
// ever emitted as a scalar field.
const (
	ChannelLat = "lat"
	ChannelLng = "lng"
)

// FieldOrder is the canonical ordering of scalar fields in exported points.
var FieldOrder = []string{FieldSOG, FieldCOG, FieldAWA, FieldAWS, FieldDepth}

// TimeLayout is the timestamp representation used in exported files:
// ISO-8601 with an explicit UTC offset, e.g. "2025-08-21T09:10:00+00:00".
const TimeLayout = "2006-01-02T15:04:05-07:00"

// Sample is a single raw telemetry reading on one channel.
type Sample struct {
	Timestamp time.Time `json:"t"`
	Channel   string    `json:"channel"`
	Value     float64   `json:"value"`
}

// MergedRecord groups all samples sharing one timestamp. Scalar channels
// live in Fields keyed by canonical name; lat/lng are also carried in
// Fields until paired into a position.
type MergedRecord struct {
	Timestamp time.Time
	Fields    map[string]float64
}

// Position returns the record's coordinate pair. A record carrying only one
// of lat/lng has no usable position and reports ok=false.
func (r *MergedRecord) Position() (geo.Point, bool) {
	lat, okLat := r.Fields[ChannelLat]
	lng, okLng := r.Fields[ChannelLng]
	if !okLat || !okLng {
		return geo.Point{}, false
	}
	return geo.Point{Lat: lat, Lng: lng}, true
}

// Keyframe is a retained track point. Full keyframes carry every scalar
// field present on the merged record; partial (heading-change) keyframes
// carry only COG. Both carry a position and a cumulative Distance.
type Keyframe struct {
	Timestamp time.Time
	Fields    map[string]float64
	Position  geo.Point
	Distance  float64
}

// COG returns the keyframe's course over ground, if it has one.
func (k *Keyframe) COG() (float64, bool) {
	v, ok := k.Fields[FieldCOG]
	return v, ok
}

// Track is an ordered sequence of keyframes, insertion order = timestamp order.
type Track []Keyframe

// MarshalJSON emits the keyframe with fields in the canonical order:
// timestamp, SOG, COG, AWA, AWS, Depth, position, Distance. Absent fields
// are omitted rather than fabricated.
func (k Keyframe) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	writeField := func(name string, v any) error {
		if buf.Len() > 1 {
			buf.WriteByte(',')
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintf(&buf, "%q:", name)
		buf.Write(data)
		return nil
	}

	if err := writeField("timestamp", k.Timestamp.Format(TimeLayout)); err != nil {
		return nil, err
	}
	for _, name := range FieldOrder {
		v, ok := k.Fields[name]
		if !ok {
			continue
		}
		if err := writeField(name, v); err != nil {
			return nil, err
		}
	}
	if err := writeField("position", k.Position); err != nil {
		return nil, err
	}
	if err := writeField("Distance", k.Distance); err != nil {
		return nil, err
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON restores a keyframe written by MarshalJSON.
func (k *Keyframe) UnmarshalJSON(data []byte) error {
	var aux struct {
		Timestamp string     `json:"timestamp"`
		SOG       *float64   `json:"SOG"`
		COG       *float64   `json:"COG"`
		AWA       *float64   `json:"AWA"`
		AWS       *float64   `json:"AWS"`
		Depth     *float64   `json:"Depth"`
		Position  *geo.Point `json:"position"`
		Distance  float64    `json:"Distance"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	ts, err := time.Parse(time.RFC3339, aux.Timestamp)
	if err != nil {
		return fmt.Errorf("invalid keyframe timestamp %q: %w", aux.Timestamp, err)
	}

	k.Timestamp = ts
	k.Distance = aux.Distance
	if aux.Position != nil {
		k.Position = *aux.Position
	}
	k.Fields = make(map[string]float64)
	for name, v := range map[string]*float64{
		FieldSOG:   aux.SOG,
		FieldCOG:   aux.COG,
		FieldAWA:   aux.AWA,
		FieldAWS:   aux.AWS,
		FieldDepth: aux.Depth,
	} {
		if v != nil {
			k.Fields[name] = *v
		}
	}
	return nil
}
