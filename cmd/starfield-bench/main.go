// Command starfield-bench walks a camera through the universe and reports
// engine timings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/starfield/server/internal/config"
	"github.com/starfield/server/internal/logging"
	"github.com/starfield/server/internal/performance"
	"github.com/starfield/server/internal/starmap"
	"github.com/starfield/server/internal/streaming"
)

type options struct {
	steps      int
	stepLength float64
	seed       string
	radius     int
	maxVisible int
	teleport   float64
	jsonOut    bool
	logLevel   string
}

func main() {
	var opts options
	flag.IntVar(&opts.steps, "steps", 600, "number of camera steps")
	flag.Float64Var(&opts.stepLength, "step", 4, "distance moved per step")
	flag.StringVar(&opts.seed, "seed", config.DefaultUniverse().GlobalSeed, "universe seed")
	flag.IntVar(&opts.radius, "radius", 1, "view radius in chunks")
	flag.IntVar(&opts.maxVisible, "max-visible", 1000, "visible star cap")
	flag.Float64Var(&opts.teleport, "teleport", 1e6, "distance of the single teleport after the walk")
	flag.BoolVar(&opts.jsonOut, "json", false, "print the report as JSON")
	flag.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, "starfield-bench:", err)
		os.Exit(1)
	}
}

type report struct {
	Steps           int                  `json:"steps"`
	ChunksGenerated int                  `json:"chunks_generated"`
	MaxStepTimeMs   float64              `json:"max_step_time_ms"`
	TeleportTimeMs  float64              `json:"teleport_time_ms"`
	Stats           streaming.Stats      `json:"stats"`
	Profiler        performance.Snapshot `json:"profiler"`
}

func run(opts options) error {
	if opts.steps < 0 {
		return fmt.Errorf("steps must not be negative")
	}
	logger := logging.NewWithWriter(config.LoggingConfig{Level: opts.logLevel, Format: "text"}, os.Stderr)
	slog.SetDefault(logger)

	settings := streaming.DefaultSettings()
	settings.ViewRadius = opts.radius
	settings.MaxVisible = opts.maxVisible

	profiler := performance.NewProfiler(true)
	manager, err := streaming.NewManager(settings, streaming.SeedConfig{Global: opts.seed},
		streaming.WithProfiler(profiler),
		streaming.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	pose := streaming.CameraPose{Yaw: 0.6, Pitch: 0.1}
	fwd := pose.Forward()

	var rep report
	for i := 0; i < opts.steps; i++ {
		start := time.Now()
		res := manager.UpdateVisible(pose.Position)
		elapsed := time.Since(start)

		rep.ChunksGenerated += res.ChunksGenerated
		rep.MaxStepTimeMs = max(rep.MaxStepTimeMs, float64(elapsed)/float64(time.Millisecond))
		pose.Position = pose.Position.Add(fwd.Scale(opts.stepLength))
	}
	rep.Steps = opts.steps

	start := time.Now()
	res := manager.UpdateVisible(pose.Position.Add(starmap.Vec3{X: opts.teleport, Y: -opts.teleport / 2}))
	rep.TeleportTimeMs = float64(time.Since(start)) / float64(time.Millisecond)
	rep.ChunksGenerated += res.ChunksGenerated

	rep.Stats = manager.Stats()
	rep.Profiler = profiler.Snapshot()

	if opts.jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Print(profiler.Report())
	fmt.Printf("steps: %d  chunks generated: %d  slowest step: %.3fms  teleport: %.3fms\n",
		rep.Steps, rep.ChunksGenerated, rep.MaxStepTimeMs, rep.TeleportTimeMs)
	fmt.Printf("cache: %d chunks, %d stars, ~%.2f MB, visible chunks: %d\n",
		rep.Stats.CachedChunks, rep.Stats.TotalStars, rep.Stats.MemoryEstimateMB, rep.Stats.VisibleChunks)
	return nil
}
