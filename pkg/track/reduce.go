package track

import (
	"fmt"
	"math"

	"github.com/zer0complexity/killicker/pkg/geo"
	"github.com/zer0complexity/killicker/pkg/model"
)

// Default tunables: full state is kept every 10 minutes regardless of
// heading, and a course change of 15° or more earns an extra point in
// between. The threshold sits just under the exact 15° arc (0.261799 rad)
// so that a true 15° swing, from whichever side of north, always clears
// the strictly-greater retention rule after float rounding.
const (
	DefaultGridMinutes      = 10
	DefaultHeadingThreshold = 0.2617
)

// Reducer decides, per merged record in arrival order, whether it becomes a
// track keyframe. Records on the retention grid are kept in full; between
// grid points, only a course change beyond the heading threshold is worth a
// (partial) point. Everything else adds no navigational information.
type Reducer struct {
	gridMinutes      int
	headingThreshold float64
}

// NewReducer validates the tunables at construction time so a bad
// configuration can never surface mid-run. gridMinutes must evenly divide
// 60; headingThreshold is in radians and must be positive.
func NewReducer(gridMinutes int, headingThreshold float64) (*Reducer, error) {
	if gridMinutes <= 0 || 60%gridMinutes != 0 {
		return nil, fmt.Errorf("grid minutes must be a positive divisor of 60, got %d", gridMinutes)
	}
	if headingThreshold <= 0 || math.IsNaN(headingThreshold) {
		return nil, fmt.Errorf("heading threshold must be positive, got %v", headingThreshold)
	}
	return &Reducer{gridMinutes: gridMinutes, headingThreshold: headingThreshold}, nil
}

// State is the only cross-record memory of a reduction pass: the most
// recently retained keyframe and the running distance total. Each pass owns
// exactly one State; concurrent runs must each use their own.
type State struct {
	lastKept *model.Keyframe
	acc      DistanceAccumulator
}

// CumulativeDistance reports the meters accumulated so far.
func (s *State) CumulativeDistance() float64 {
	return s.acc.Total()
}

// Reduce runs a full pass over the records and returns the resulting track.
// The input is assumed monotonically non-decreasing in time. Reduce is a
// pure function of (records, tunables): re-running it on the same input
// yields an identical track.
func (r *Reducer) Reduce(records []model.MergedRecord) model.Track {
	var track model.Track
	var st State
	for i := range records {
		if kf := r.Step(&st, &records[i]); kf != nil {
			track = append(track, *kf)
		}
	}
	return track
}

// Step consumes one merged record, updating the state and returning the
// retained keyframe, or nil when the record is dropped.
func (r *Reducer) Step(st *State, rec *model.MergedRecord) *model.Keyframe {
	pos, ok := rec.Position()
	if !ok {
		// Already filtered by the merger, but a caller-built record with a
		// lone coordinate must be skipped here too.
		return nil
	}

	var kf *model.Keyframe
	switch {
	case r.onGrid(rec):
		kf = fullKeyframe(rec, pos)
	case r.headingChanged(st.lastKept, rec):
		kf = partialKeyframe(rec, pos)
	default:
		return nil
	}

	st.acc.Stamp(st.lastKept, kf)
	st.lastKept = kf
	return kf
}

// onGrid reports whether the record's timestamp sits on the retention grid.
// The grid is configured explicitly and is independent of whatever
// aggregation interval produced the input stream.
func (r *Reducer) onGrid(rec *model.MergedRecord) bool {
	t := rec.Timestamp.UTC()
	return t.Minute()%r.gridMinutes == 0 && t.Second() == 0
}

// headingChanged reports whether the record's course differs from the last
// kept point by more than the threshold, on the shortest circular arc.
// Without a previously kept course (or a current one) there is nothing to
// compare against and the record is not retained.
func (r *Reducer) headingChanged(lastKept *model.Keyframe, rec *model.MergedRecord) bool {
	if lastKept == nil {
		return false
	}
	prevCOG, ok := lastKept.COG()
	if !ok {
		return false
	}
	cog, ok := rec.Fields[model.FieldCOG]
	if !ok {
		return false
	}
	return geo.AngularDifference(cog, prevCOG) > r.headingThreshold
}

// fullKeyframe retains every scalar field present on the record.
func fullKeyframe(rec *model.MergedRecord, pos geo.Point) *model.Keyframe {
	fields := make(map[string]float64)
	for _, name := range model.FieldOrder {
		if v, ok := rec.Fields[name]; ok {
			fields[name] = v
		}
	}
	return &model.Keyframe{Timestamp: rec.Timestamp, Fields: fields, Position: pos}
}

// partialKeyframe retains only the course; the point exists purely to mark
// a change of heading between grid points.
func partialKeyframe(rec *model.MergedRecord, pos geo.Point) *model.Keyframe {
	return &model.Keyframe{
		Timestamp: rec.Timestamp,
		Fields:    map[string]float64{model.FieldCOG: rec.Fields[model.FieldCOG]},
		Position:  pos,
	}
}
