// bench sweeps velocity/acceleration settings on a LAC-1 attached stage and
// measures travel time per lap, recording results to the database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/smac-tools/stagebench/internal/bench"
	"github.com/smac-tools/stagebench/internal/config"
	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/lac1"
	"github.com/smac-tools/stagebench/internal/report"
	"github.com/smac-tools/stagebench/internal/security"
	"github.com/smac-tools/stagebench/internal/serialmux"
)

var (
	devMode       = flag.Bool("dev", false, "Run against a simulated controller")
	portPath      = flag.String("port", "/dev/ttyS0", "Serial port path")
	baud          = flag.Int("baud", 19200, "Serial baud rate")
	stageProfile  = flag.String("stage-profile", "", "Stage profile JSON")
	dbPath        = flag.String("db", "stagebench.db", "Results database path (empty to skip recording)")
	chartPath     = flag.String("chart", "", "Write an HTML chart of this sweep to the given path")
	velocities    = flag.String("velocities", "1000", "Comma-separated velocities to test (mm/s)")
	accelerations = flag.String("accelerations", "30000", "Comma-separated accelerations to test (mm/s/s)")
	loops         = flag.Int("loops", 1000, "Laps per combination")
	distance      = flag.Float64("distance", 2, "Lap distance in mm")
	torque        = flag.Int64("torque", 10000, "Torque limit (raw SQ units)")
)

func main() {
	flag.Parse()

	profile := config.EmptyStageProfile()
	if *stageProfile != "" {
		var err error
		profile, err = config.LoadStageProfile(*stageProfile)
		if err != nil {
			log.Fatalf("failed to load stage profile: %v", err)
		}
	}

	cfg := bench.SweepConfig{
		Loops:      *loops,
		DistanceMM: *distance,
		Torque:     *torque,
		Stage:      profile.GetName(),
	}
	var err error
	if cfg.Velocities, err = bench.ParseCSVFloats(*velocities); err != nil {
		log.Fatalf("invalid -velocities: %v", err)
	}
	if cfg.Accelerations, err = bench.ParseCSVFloats(*accelerations); err != nil {
		log.Fatalf("invalid -accelerations: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid sweep config: %v", err)
	}

	var factory serialmux.SerialPortFactory = serialmux.RealSerialPortFactory{}
	if *devMode {
		factory = serialmux.ScriptedPortFactory{Responder: lac1.SimulatorResponder()}
	}

	ctrl, err := lac1.Dial(factory, *portPath, serialmux.PortOptions{BaudRate: *baud}, profile)
	if err != nil {
		log.Fatalf("failed to open serial port %s: %v", *portPath, err)
	}
	defer ctrl.Close()
	if !*devMode {
		log.Printf("connected to LAC-1 on %s (%d baud)", *portPath, *baud)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancelInit := context.WithTimeout(ctx, 10*time.Second)
	if err := ctrl.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("failed to initialize controller: %v", err)
	}
	cancelInit()

	var store bench.RunStore
	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		store = database
	}

	engine := bench.NewEngine(ctrl, store, cfg)
	results, err := engine.Run(ctx)
	if err != nil {
		log.Printf("sweep ended early: %v", err)
	}
	if len(results) == 0 {
		log.Fatal("no results")
	}

	printResults(results)

	if *chartPath != "" {
		if err := security.ValidateExportPath(*chartPath); err != nil {
			log.Fatalf("invalid chart path: %v", err)
		}
		f, err := os.Create(*chartPath)
		if err != nil {
			log.Fatalf("failed to create chart file: %v", err)
		}
		defer f.Close()
		if err := report.RenderRunsChart(f, results); err != nil {
			log.Fatalf("failed to render chart: %v", err)
		}
		log.Printf("wrote chart to %s", *chartPath)
	}
}

func printResults(results []db.BenchRun) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VELOCITY\tACCEL\tLAPS\tTOTAL s\tMEAN LAP s\tSTDDEV s\tAVG mm/s\tSTATUS")
	for _, run := range results {
		status := "ok"
		if run.Aborted {
			status = "aborted: " + run.AbortReason
		}
		fmt.Fprintf(w, "%.1f\t%.1f\t%d/%d\t%.2f\t%.4f\t%.4f\t%.2f\t%s\n",
			run.VelocityMMS, run.AccelerationMMSS, run.LapsCompleted, run.Loops,
			run.TotalSeconds, run.MeanLapSeconds, run.StddevLapSeconds,
			run.AvgSpeedMMS, status)
	}
	w.Flush()

	var travelled, total float64
	for _, run := range results {
		travelled += float64(run.LapsCompleted) * run.DistanceMM * 2
		total += run.TotalSeconds
	}
	if total > 0 {
		fmt.Printf("travelled %.1f mm in %.2f s (avg %.2f mm/s)\n", travelled, total, travelled/total)
	}
}
