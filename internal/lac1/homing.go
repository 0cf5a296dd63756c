package lac1

import (
	"context"
	"fmt"
)

// SetHomeMacro programs the homing routine onto controller macros 100, 101,
// 102 and 105, and inserts a call to macro 100 in macro 0 so it runs on
// power-up. Macros persist between power cycles, so this only needs to run
// once per controller; it does nothing if macro 0 is already defined, unless
// force is set.
//
// The routine drives the axis in the direction of decreasing encoder count
// at a fixed force until position error exceeds the threshold (the hard
// stop), then backs off 1000 counts and defines home there. The force,
// velocity and back-off values are tuned for the LCS25-025-xx-x stage; the
// stage profile must explicitly allow programming them.
func (c *Controller) SetHomeMacro(ctx context.Context, force bool) error {
	if !c.profile.GetAllowHomeMacro() {
		return ErrHomeMacroNotAllowed
	}

	macro0, err := c.session.Exec(ctx, CmdInt("TM", 0))
	if err != nil {
		return fmt.Errorf("failed to query macro 0: %w", err)
	}
	if len(macro0) > 0 && !force {
		return nil
	}

	// the motor must be off before touching macros
	if err := c.MotorOff(ctx); err != nil {
		return fmt.Errorf("failed to switch motor off: %w", err)
	}
	if _, err := c.session.Exec(ctx, Cmd("RM")); err != nil {
		return fmt.Errorf("failed to reset macros: %w", err)
	}

	// Macro 100 re-programs the servo parameters: it runs on startup, when
	// no PID parameters have been set yet.
	if _, err := c.session.Exec(ctx,
		CmdInt("MD", 100),
		CmdInt("SG", int64(c.profile.GetServoGain())),
		CmdInt("SI", int64(c.profile.GetIntegralGain())),
		CmdInt("SD", int64(c.profile.GetDerivativeGain())),
		CmdInt("IL", int64(c.profile.GetIntegrationLimit())),
		CmdInt("FR", int64(c.profile.GetFrictionComp())),
		CmdInt("RI", int64(c.profile.GetDerivativeRate())),
	); err != nil {
		return fmt.Errorf("failed to define macro 100: %w", err)
	}

	// Macro 101: velocity mode, motor on, set force, acceleration and
	// velocity, drive in the direction of decreasing encoder count, wait
	// 20 ms for motion to develop.
	if _, err := c.session.Exec(ctx,
		CmdInt("MD", 101),
		Cmd("VM"), Cmd("MN"),
		CmdInt("SQ", 7000), CmdInt("SA", 1000), CmdInt("SV", 60000),
		CmdInt("DI", 1), Cmd("GO"), CmdInt("WA", 20),
	); err != nil {
		return fmt.Errorf("failed to define macro 101: %w", err)
	}

	// Macro 102: read the position error word (memory 538); if below -20 we
	// are stalled against the limit, jump to macro 105, otherwise repeat.
	// IB executes the next two commands when true, so a NO pads the jump.
	if _, err := c.session.Exec(ctx,
		CmdInt("MD", 102),
		CmdInt("RW", 538), CmdInt("IB", -20), Cmd("NO"), CmdInt("MJ", 105), Cmd("RP"),
	); err != nil {
		return fmt.Errorf("failed to define macro 102: %w", err)
	}

	// Macro 105: at the limit. Stop, settle, back off 1000 counts, define
	// home there, go home, motor off.
	if _, err := c.session.Exec(ctx,
		CmdInt("MD", 105),
		Cmd("ST"), CmdInt("WS", 10), Cmd("PM"), CmdInt("MR", 1000), Cmd("GO"),
		CmdInt("WS", 25), CmdInt("DH", 0), Cmd("GH"), Cmd("MF"),
	); err != nil {
		return fmt.Errorf("failed to define macro 105: %w", err)
	}

	if _, err := c.session.Exec(ctx, CmdInt("MD", 0), CmdInt("MC", 100)); err != nil {
		return fmt.Errorf("failed to define macro 0: %w", err)
	}

	return nil
}

// Home runs the homing macro chain. SetHomeMacro must have programmed the
// macros previously (possibly in an earlier power cycle).
func (c *Controller) Home(ctx context.Context) error {
	if _, err := c.session.Exec(ctx, CmdInt("MS", 100)); err != nil {
		return fmt.Errorf("failed to run homing macro: %w", err)
	}
	return nil
}
