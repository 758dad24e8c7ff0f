package track

import (
	"github.com/zer0complexity/killicker/pkg/geo"
	"github.com/zer0complexity/killicker/pkg/model"
)

// DistanceAccumulator maintains the running geodesic distance of a
// reduction pass and stamps it onto every retained keyframe. Partial
// keyframes advance the total just like full ones; only their position
// matters here.
type DistanceAccumulator struct {
	cumulative float64
}

// Stamp sets current.Distance. The first retained point of a pass gets 0;
// every later point gets the previous total plus the haversine distance
// from the previously kept position. The stamped value is monotonically
// non-decreasing across the retained sequence.
func (a *DistanceAccumulator) Stamp(prevKept, current *model.Keyframe) {
	if prevKept != nil {
		a.cumulative += geo.Distance(prevKept.Position, current.Position)
	}
	current.Distance = a.cumulative
}

// Total returns the distance accumulated so far, in meters.
func (a *DistanceAccumulator) Total() float64 {
	return a.cumulative
}
