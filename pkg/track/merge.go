package track

import (
	"log/slog"
	"sort"
	"time"

	"github.com/zer0complexity/killicker/pkg/model"
)

// MergeSamples folds a flat list of per-channel samples into one merged
// record per distinct timestamp, in ascending timestamp order. If a channel
// appears more than once at the same timestamp the last value wins. Records
// without a complete position are dropped with a warning; position is
// mandatory for every retained point and a record without one can never
// contribute to the track.
//
// Samples are grouped by instant, not by time.Time equality, so the same
// moment expressed in different locations folds into one record.
func MergeSamples(samples []model.Sample) []model.MergedRecord {
	byTime := make(map[int64]map[string]float64)
	for _, s := range samples {
		key := s.Timestamp.UnixNano()
		fields, ok := byTime[key]
		if !ok {
			fields = make(map[string]float64)
			byTime[key] = fields
		}
		fields[s.Channel] = s.Value
	}

	keys := make([]int64, 0, len(byTime))
	for k := range byTime {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	records := make([]model.MergedRecord, 0, len(keys))
	for _, k := range keys {
		t := time.Unix(0, k).UTC()
		r := model.MergedRecord{Timestamp: t, Fields: byTime[k]}
		if _, ok := r.Position(); !ok {
			slog.Warn("Dropping record without position", "timestamp", t.Format(model.TimeLayout))
			continue
		}
		records = append(records, r)
	}
	return records
}
