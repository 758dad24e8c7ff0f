package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/zer0complexity/killicker/pkg/config"
	"github.com/zer0complexity/killicker/pkg/db"
	"github.com/zer0complexity/killicker/pkg/export"
	"github.com/zer0complexity/killicker/pkg/gitops"
	"github.com/zer0complexity/killicker/pkg/influx"
	"github.com/zer0complexity/killicker/pkg/logging"
	"github.com/zer0complexity/killicker/pkg/store"
	"github.com/zer0complexity/killicker/pkg/track"
)

const dayLayout = "2006-01-02"

var (
	configPath = flag.String("config", "configs/killicker.yaml", "Path to config file")
	initConfig = flag.Bool("init-config", false, "Generate default config file and exit")
	startDate  = flag.String("start-date", "", "First day to export, YYYY-MM-DD (default: yesterday)")
	endDate    = flag.String("end-date", "", "Day after the last day to export, YYYY-MM-DD (default: start-date + 1 day)")
	geoJSON    = flag.Bool("geojson", false, "Also write a GeoJSON rendering of each track")
	noPush     = flag.Bool("no-push", false, "Skip committing and pushing exported data even if git is enabled")
)

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated:", *configPath)
		return
	}

	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Export failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := godotenv.Load(); err == nil {
		slog.Debug("Loaded environment from .env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	start, end, err := resolveDates(*startDate, *endDate)
	if err != nil {
		return err
	}
	slog.Info("Killicker export started", "start", start.Format(dayLayout), "end", end.Format(dayLayout))

	token, err := cfg.ResolveToken()
	if err != nil {
		return err
	}

	getter := influx.New(cfg.Influx.URL, token, cfg.Influx.Org, cfg.Influx.Bucket)
	defer getter.Close()

	if cfg.Cache.Enabled {
		st, err := initCache(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		getter.SetCache(st)
	}

	exporter := export.New(cfg.Export.DataDir)
	reducer, err := track.NewReducer(cfg.Track.GridMinutes, cfg.Track.HeadingThreshold)
	if err != nil {
		return err
	}

	exported := 0
	for day := start; day.Before(end); day = day.Add(24 * time.Hour) {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := exportDay(ctx, getter, reducer, exporter, cfg, day)
		if err != nil {
			return fmt.Errorf("export of %s failed: %w", day.Format(dayLayout), err)
		}
		if n > 0 {
			exported++
		}
	}
	slog.Info("Export finished", "days", exported)

	if cfg.Git.Enabled && !*noPush && exported > 0 {
		if err := publish(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

// exportDay fetches one UTC day of telemetry, reduces it and writes the
// track. Days without any usable records are skipped. Returns the number of
// keyframes written.
func exportDay(ctx context.Context, getter *influx.Getter, reducer *track.Reducer, exporter *export.Exporter, cfg *config.Config, day time.Time) (int, error) {
	stop := day.Add(24 * time.Hour)

	samples, err := getter.GetSamples(ctx, day, stop, time.Duration(cfg.Influx.RetrievalInterval))
	if err != nil {
		return 0, err
	}
	records := track.MergeSamples(samples)
	if len(records) == 0 {
		slog.Info("No records for day, skipping", "day", day.Format(dayLayout))
		return 0, nil
	}

	reduced := reducer.Reduce(records)
	if len(reduced) == 0 {
		slog.Info("Reduction left no keyframes, skipping", "day", day.Format(dayLayout))
		return 0, nil
	}

	trackID := day.Format("20060102-1504")
	if err := exporter.WriteTrack(trackID, reduced); err != nil {
		return 0, err
	}
	if *geoJSON || cfg.Export.GeoJSON {
		if err := exporter.WriteGeoJSON(trackID, reduced); err != nil {
			return 0, err
		}
	}

	slog.Info("Track exported", "track", trackID, "records", len(records), "keyframes", len(reduced))
	return len(reduced), nil
}

func publish(ctx context.Context, cfg *config.Config) error {
	g, err := gitops.Open(&cfg.Git)
	if err != nil {
		return err
	}
	if err := g.AddFiles(cfg.Export.DataDir); err != nil {
		return err
	}
	return g.CommitAndPush(ctx, "")
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

// resolveDates turns the date flags into a [start, end) day range in UTC.
func resolveDates(startStr, endStr string) (time.Time, time.Time, error) {
	var start time.Time
	if startStr == "" {
		start = time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	} else {
		var err error
		start, err = time.Parse(dayLayout, startStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start date %q: %w", startStr, err)
		}
	}

	end := start.Add(24 * time.Hour)
	if endStr != "" {
		var err error
		end, err = time.Parse(dayLayout, endStr)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end date %q: %w", endStr, err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is not after start date %s", end.Format(dayLayout), start.Format(dayLayout))
	}
	return start, end, nil
}
