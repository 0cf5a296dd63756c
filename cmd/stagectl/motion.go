package main

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smac-tools/stagebench/internal/bench"
	"github.com/smac-tools/stagebench/internal/lac1"
)

var homeCmd = &cobra.Command{
	Use:   "home",
	Short: "Run the homing macro chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return ctrl.Home(context.Background())
	},
}

var setHomeMacroForce bool

var setHomeMacroCmd = &cobra.Command{
	Use:   "set-home-macro",
	Short: "Program the homing macros onto the controller",
	Long: `Programs the LCS25-025 homing routine onto controller macros 100-105. ` +
		`Macros persist across power cycles, so this only needs to run once per ` +
		`controller. The stage profile must set allow_home_macro.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()
		return ctrl.SetHomeMacro(context.Background(), setHomeMacroForce)
	},
}

var moveCmd = &cobra.Command{
	Use:   "move <position-mm>",
	Short: "Move to an absolute position in mm and wait for settle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		posMM, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[0], err)
		}

		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		fmt.Printf("moving to %.3f mm\n", posMM)
		if err := ctrl.MoveAbsoluteMM(context.Background(), posMM, true); err != nil {
			return err
		}
		fmt.Println("done")
		return nil
	},
}

var (
	timedMoveVelocity     float64
	timedMoveAcceleration float64
)

var timedMoveCmd = &cobra.Command{
	Use:   "timed-move <from-mm> <to-mm>",
	Short: "Time a single move between two positions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		fromMM, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[0], err)
		}
		toMM, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid position %q: %w", args[1], err)
		}

		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		ctx := context.Background()
		if timedMoveVelocity > 0 {
			if err := ctrl.SetMaxVelocity(ctx, timedMoveVelocity); err != nil {
				return err
			}
		}
		if timedMoveAcceleration > 0 {
			if err := ctrl.SetMaxAcceleration(ctx, timedMoveAcceleration); err != nil {
				return err
			}
		}

		engine := bench.NewEngine(ctrl, nil, bench.DefaultSweepConfig())
		seconds, err := engine.TimedMove(ctx, fromMM, toMM)
		if err != nil {
			return err
		}
		fmt.Printf("%.4f s", seconds)
		if seconds > 0 {
			fmt.Printf(" (%.2f mm/s)", math.Abs(toMM-fromMM)/seconds)
		}
		fmt.Println()
		return nil
	},
}

var positionCmd = &cobra.Command{
	Use:   "position",
	Short: "Report the current position",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		pos, err := ctrl.PositionEnc(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%d counts (%.4f mm)\n", pos, ctrl.Scale().MMFromEnc(pos))
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <command> [command...]",
	Short: "Send raw allowlisted commands as one transmission",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmds := make([]lac1.Command, 0, len(args))
		for _, raw := range args {
			c, ok := lac1.ParseRaw(raw)
			if !ok {
				return fmt.Errorf("malformed command %q", raw)
			}
			if !lac1.IsAllowedCommand(c.Mnemonic) {
				return fmt.Errorf("command %q is not allowed", c.Mnemonic)
			}
			cmds = append(cmds, c)
		}

		ctrl, err := dialController()
		if err != nil {
			return err
		}
		defer ctrl.Close()

		lines, err := ctrl.Session().Exec(context.Background(), cmds...)
		if err != nil {
			return err
		}
		if len(lines) > 0 {
			fmt.Println(strings.Join(lines, "\n"))
		}
		return nil
	},
}

func init() {
	setHomeMacroCmd.Flags().BoolVar(&setHomeMacroForce, "force", false,
		"reprogram even if macro 0 is already defined")
	timedMoveCmd.Flags().Float64Var(&timedMoveVelocity, "velocity", 0,
		"velocity limit in mm/s (0 keeps the safe default)")
	timedMoveCmd.Flags().Float64Var(&timedMoveAcceleration, "acceleration", 0,
		"acceleration limit in mm/s/s (0 keeps the safe default)")

	rootCmd.AddCommand(homeCmd)
	rootCmd.AddCommand(setHomeMacroCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(timedMoveCmd)
	rootCmd.AddCommand(positionCmd)
	rootCmd.AddCommand(sendCmd)
}
