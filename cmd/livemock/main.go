// Command livemock replays a recorded day of telemetry as a live track,
// extending the track files point by point and broadcasting each update
// over WebSocket, so the map frontend can be exercised ashore.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zer0complexity/killicker/pkg/config"
	"github.com/zer0complexity/killicker/pkg/db"
	"github.com/zer0complexity/killicker/pkg/export"
	"github.com/zer0complexity/killicker/pkg/influx"
	"github.com/zer0complexity/killicker/pkg/live"
	"github.com/zer0complexity/killicker/pkg/logging"
	"github.com/zer0complexity/killicker/pkg/model"
	"github.com/zer0complexity/killicker/pkg/store"
	"github.com/zer0complexity/killicker/pkg/track"
)

var (
	configPath     = flag.String("config", "configs/killicker.yaml", "Path to config file")
	startDate      = flag.String("start-date", "", "First day to replay, YYYY-MM-DD")
	dayCount       = flag.Int("day-count", 1, "Number of days to replay")
	trackID        = flag.String("track-id", "live-track", "Track ID to use for the live track")
	updateInterval = flag.Int("update-interval", 10, "Seconds between point updates; 0 prints the reduced track and exits")
	removeTrack    = flag.String("remove-track", "", "Remove the given track ID from the data files and exit")
)

func main() {
	flag.Parse()

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Livemock failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	exporter := export.New(cfg.Export.DataDir)

	if *removeTrack != "" {
		return exporter.RemoveTrack(*removeTrack)
	}

	reduced, err := fetchReduced(ctx, cfg)
	if err != nil {
		return err
	}
	if len(reduced) == 0 {
		slog.Info("No keyframes to replay")
		return nil
	}

	if *updateInterval <= 0 {
		data, err := json.MarshalIndent(reduced, "", "    ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	return replay(ctx, cfg, exporter, reduced)
}

func fetchReduced(ctx context.Context, cfg *config.Config) (model.Track, error) {
	if *startDate == "" {
		return nil, errors.New("start date is required for replay")
	}
	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", *startDate, err)
	}
	stop := start.Add(time.Duration(*dayCount) * 24 * time.Hour)

	token, err := cfg.ResolveToken()
	if err != nil {
		return nil, err
	}
	getter := influx.New(cfg.Influx.URL, token, cfg.Influx.Org, cfg.Influx.Bucket)
	defer getter.Close()

	// Same query cache as the exporter: a day already fetched replays
	// without touching the server.
	if cfg.Cache.Enabled {
		st, err := initCache(cfg)
		if err != nil {
			return nil, err
		}
		defer st.Close()
		getter.SetCache(st)
	}

	samples, err := getter.GetSamples(ctx, start, stop, time.Duration(cfg.Influx.RetrievalInterval))
	if err != nil {
		return nil, err
	}
	records := track.MergeSamples(samples)
	slog.Info("Fetched telemetry", "samples", len(samples), "records", len(records))

	reducer, err := track.NewReducer(cfg.Track.GridMinutes, cfg.Track.HeadingThreshold)
	if err != nil {
		return nil, err
	}
	return reducer.Reduce(records), nil
}

// replay feeds keyframes into the live track one at a time, broadcasting
// each to connected WebSocket clients and waiting the update interval in
// between. The live track is always ended, even on interrupt.
func replay(ctx context.Context, cfg *config.Config, exporter *export.Exporter, reduced model.Track) error {
	hub := live.NewHub()
	defer hub.Close()

	srv := &http.Server{Addr: cfg.Live.Address, Handler: hub}
	go func() {
		slog.Info("Live feed listening", "addr", cfg.Live.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Live feed server failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := exporter.StartLiveTrack(*trackID); err != nil {
		return err
	}
	defer func() {
		if err := exporter.EndLiveTrack(); err != nil {
			slog.Error("Failed to end live track", "error", err)
		}
	}()

	interval := time.Duration(*updateInterval) * time.Second
	for i := range reduced {
		point := reduced[i : i+1]
		if err := exporter.ExtendTrack(*trackID, point, false); err != nil {
			return err
		}
		if msg, err := json.Marshal(liveUpdate{Track: *trackID, PointCount: i + 1, Point: &reduced[i]}); err == nil {
			hub.Broadcast(msg)
		}
		slog.Info("Replayed point", "track", *trackID, "point", i+1, "total", len(reduced))

		if i == len(reduced)-1 {
			break
		}
		select {
		case <-ctx.Done():
			slog.Info("Replay interrupted")
			return nil
		case <-time.After(interval):
		}
	}
	return nil
}

func initCache(cfg *config.Config) (*store.SQLiteStore, error) {
	d, err := db.Init(cfg.Cache.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	if err := d.PruneCache(time.Duration(cfg.Cache.TTL)); err != nil {
		slog.Warn("Cache pruning failed", "error", err)
	}
	return store.NewSQLiteStore(d), nil
}

type liveUpdate struct {
	Track      string          `json:"track"`
	PointCount int             `json:"pointCount"`
	Point      *model.Keyframe `json:"point"`
}
