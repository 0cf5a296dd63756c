package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/smac-tools/stagebench/internal/config"
	"github.com/smac-tools/stagebench/internal/lac1"
	"github.com/smac-tools/stagebench/internal/serialmux"
	"github.com/smac-tools/stagebench/internal/version"
)

var (
	flagPort    string
	flagBaud    int
	flagDev     bool
	flagProfile string
	flagDB      string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stagectl",
	Short: "Control a SMAC LAC-1 attached linear stage over serial.",
	Long: `stagectl performs one-off operations on a SMAC LAC-1 motion ` +
		`controller: homing, absolute moves, position queries, and raw ` +
		`commands. It also lists and charts benchmark runs recorded by bench.`,
	Version: fmt.Sprintf("%s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagPort, "port", "/dev/ttyS0", "serial port path")
	rootCmd.PersistentFlags().IntVar(&flagBaud, "baud", 19200, "serial baud rate")
	rootCmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "use a simulated controller")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "stage-profile", "", "stage profile JSON")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "stagebench.db", "results database path")
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// dialController opens the configured port and returns an initialised
// controller. The caller must Close it.
func dialController() (*lac1.Controller, error) {
	profile := config.EmptyStageProfile()
	if flagProfile != "" {
		var err error
		profile, err = config.LoadStageProfile(flagProfile)
		if err != nil {
			return nil, err
		}
	}

	var factory serialmux.SerialPortFactory = serialmux.RealSerialPortFactory{}
	if flagDev {
		factory = serialmux.ScriptedPortFactory{Responder: lac1.SimulatorResponder()}
	}

	ctrl, err := lac1.Dial(factory, flagPort, serialmux.PortOptions{BaudRate: flagBaud}, profile)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ctrl.Initialize(ctx); err != nil {
		ctrl.Close()
		return nil, fmt.Errorf("failed to initialize controller: %w", err)
	}
	return ctrl, nil
}
