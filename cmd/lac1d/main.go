// lac1d is the long-lived daemon: it owns the serial connection to a LAC-1
// controller and exposes it over HTTP, recording executed commands to the
// results database.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/smac-tools/stagebench/internal/api"
	"github.com/smac-tools/stagebench/internal/config"
	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/lac1"
	"github.com/smac-tools/stagebench/internal/serialmux"
	"github.com/smac-tools/stagebench/internal/version"
)

var (
	devMode      = flag.Bool("dev", false, "Run against a simulated controller")
	listen       = flag.String("listen", "", "Listen address (overrides LAC1_LISTEN)")
	portPath     = flag.String("port", "", "Serial port path (overrides LAC1_PORT)")
	dbPath       = flag.String("db", "", "Results database path (overrides LAC1_DB)")
	stageProfile = flag.String("stage-profile", "", "Stage profile JSON (overrides LAC1_STAGE_PROFILE)")
)

func main() {
	flag.Parse()
	log.Printf("lac1d %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	envCfg, err := config.LoadEnv()
	if err != nil {
		log.Fatalf("failed to load environment config: %v", err)
	}
	if *listen == "" {
		*listen = envCfg.Listen
	}
	if *portPath == "" {
		*portPath = envCfg.Port
	}
	if *dbPath == "" {
		*dbPath = envCfg.DBPath
	}
	if *stageProfile == "" {
		*stageProfile = envCfg.StageProfile
	}
	if !*devMode {
		*devMode = envCfg.Dev
	}

	profile := config.EmptyStageProfile()
	if *stageProfile != "" {
		profile, err = config.LoadStageProfile(*stageProfile)
		if err != nil {
			log.Fatalf("failed to load stage profile: %v", err)
		}
	}
	if envCfg.AllowHomeMacro {
		allow := true
		profile.AllowHomeMacro = &allow
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var factory serialmux.SerialPortFactory = serialmux.RealSerialPortFactory{}
	if *devMode {
		log.Printf("running in dev mode against a simulated stage")
		factory = serialmux.ScriptedPortFactory{Responder: lac1.SimulatorResponder()}
	}

	ctrl, err := lac1.Dial(factory, *portPath, serialmux.PortOptions{
		BaudRate:    envCfg.Baud,
		ReadTimeout: envCfg.ReadTimeout,
	}, profile)
	if err != nil {
		log.Fatalf("failed to open serial port %s: %v", *portPath, err)
	}
	defer ctrl.Close()
	if !*devMode {
		log.Printf("connected to LAC-1 on %s (%d baud)", *portPath, envCfg.Baud)
	}

	// wire the API (and its command log hook) before initialization so the
	// servo programming traffic is recorded too
	handler := api.NewServer(ctrl, database).ServeMux()

	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ctrl.Initialize(initCtx); err != nil {
		cancelInit()
		log.Fatalf("failed to initialize controller: %v", err)
	}
	cancelInit()
	log.Printf("initialized stage %s", profile.GetName())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    *listen,
		Handler: handler,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("listening on %s", *listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server failed: %v", err)
			stop()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown failed: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("graceful shutdown complete")
}
