package influx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/zer0complexity/killicker/pkg/model"
	"github.com/zer0complexity/killicker/pkg/store"
)

// ErrDisjointSeries is returned when a query yields more than one logically
// distinct table for a single time range. The design assumes one continuous
// track per query; a run is never silently completed from disjoint series.
var ErrDisjointSeries = errors.New("influx: query returned more than one series for the range")

// Telemetry sources aboard.
const (
	sourceWindDepth = "PICAN-M.105"
	sourceGPS       = "USB_GPS_Puck.GN"
)

// columnToChannel maps pivoted measurement_field columns to canonical
// channel names.
var columnToChannel = map[string]string{
	"environment.depth.belowTransducer_value": model.FieldDepth,
	"environment.wind.angleApparent_value":    model.FieldAWA,
	"environment.wind.speedApparent_value":    model.FieldAWS,
	"navigation.speedOverGround_value":        model.FieldSOG,
	"navigation.courseOverGroundTrue_value":   model.FieldCOG,
	"navigation.position_lat":                 model.ChannelLat,
	"navigation.position_lon":                 model.ChannelLng,
}

// Getter fetches raw telemetry samples from InfluxDB. An optional cache
// store keeps query results locally so re-exports of a day do not hit the
// server again.
type Getter struct {
	client influxdb2.Client
	org    string
	bucket string
	cache  store.CacheStore
}

// New creates a Getter for the given server and bucket.
func New(url, token, org, bucket string) *Getter {
	return &Getter{
		client: influxdb2.NewClient(url, token),
		org:    org,
		bucket: bucket,
	}
}

// SetCache attaches a local query cache.
func (g *Getter) SetCache(c store.CacheStore) {
	g.cache = c
}

// Close releases the underlying HTTP client.
func (g *Getter) Close() {
	g.client.Close()
}

// GetSamples returns all telemetry samples in [start, stop), aggregated
// server-side to one value per channel per interval, ordered by time.
func (g *Getter) GetSamples(ctx context.Context, start, stop time.Time, interval time.Duration) ([]model.Sample, error) {
	key := cacheKey(g.bucket, start, stop, interval)
	if g.cache != nil {
		if data, ok := g.cache.GetCache(ctx, key); ok {
			var samples []model.Sample
			if err := json.Unmarshal(data, &samples); err == nil {
				slog.Debug("Influx query served from cache", "key", key, "samples", len(samples))
				return samples, nil
			}
			slog.Warn("Discarding unreadable cache entry", "key", key)
		}
	}

	samples, err := g.query(ctx, start, stop, interval)
	if err != nil {
		return nil, err
	}

	if g.cache != nil && len(samples) > 0 {
		if data, err := json.Marshal(samples); err == nil {
			if err := g.cache.SetCache(ctx, key, data); err != nil {
				slog.Warn("Failed to cache query result", "key", key, "error", err)
			}
		}
	}
	return samples, nil
}

func (g *Getter) query(ctx context.Context, start, stop time.Time, interval time.Duration) ([]model.Sample, error) {
	queryAPI := g.client.QueryAPI(g.org)

	result, err := queryAPI.Query(ctx, buildFlux(g.bucket, start, stop, interval))
	if err != nil {
		return nil, fmt.Errorf("influx query failed: %w", err)
	}

	var samples []model.Sample
	tableIdx := -1
	for result.Next() {
		rec := result.Record()
		if tableIdx == -1 {
			tableIdx = rec.Table()
		} else if rec.Table() != tableIdx {
			return nil, ErrDisjointSeries
		}
		samples = append(samples, extractSamples(rec.Time(), rec.Values())...)
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("influx result error: %w", result.Err())
	}

	return samples, nil
}

// buildFlux assembles the union+pivot query: wind and depth from the NMEA
// gateway, speed/course/position from the GPS puck, each aggregated to the
// last value per window, pivoted into one row per timestamp.
func buildFlux(bucket string, start, stop time.Time, interval time.Duration) string {
	r := func(t time.Time) string { return t.UTC().Format(time.RFC3339) }
	every := fluxDuration(interval)

	return fmt.Sprintf(`
		winddepth = from(bucket: %q)
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == "environment.depth.belowTransducer" or r["_measurement"] == "environment.wind.angleApparent" or r["_measurement"] == "environment.wind.speedApparent")
			|> filter(fn: (r) => r["source"] == %q)
			|> drop(columns:["source", "context", "self"])
			|> aggregateWindow(every: %s, fn: last, createEmpty: false)

		sogcogpos = from(bucket: %q)
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == "navigation.speedOverGround" or r["_measurement"] == "navigation.courseOverGroundTrue" or r["_measurement"] == "navigation.position")
			|> filter(fn: (r) => r["source"] == %q)
			|> drop(columns:["source", "context", "self", "s2_cell_id"])
			|> aggregateWindow(every: %s, fn: last, createEmpty: false)

		union(tables: [winddepth, sogcogpos])
			|> pivot(rowKey:["_time", "_start", "_stop"], columnKey: ["_measurement", "_field"], valueColumn: "_value")
	`, bucket, r(start), r(stop), sourceWindDepth, every,
		bucket, r(start), r(stop), sourceGPS, every)
}

// extractSamples pulls every known channel column out of one pivoted row.
func extractSamples(ts time.Time, values map[string]interface{}) []model.Sample {
	var samples []model.Sample
	for col, channel := range columnToChannel {
		v, ok := values[col]
		if !ok || v == nil {
			continue
		}
		f, ok := toFloat(v)
		if !ok {
			continue
		}
		samples = append(samples, model.Sample{Timestamp: ts, Channel: channel, Value: f})
	}
	return samples
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func fluxDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%ds", int(d.Seconds()))
}

func cacheKey(bucket string, start, stop time.Time, interval time.Duration) string {
	return fmt.Sprintf("influx|%s|%s|%s|%s",
		bucket, start.UTC().Format(time.RFC3339), stop.UTC().Format(time.RFC3339), fluxDuration(interval))
}
