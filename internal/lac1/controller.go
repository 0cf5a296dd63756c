package lac1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/smac-tools/stagebench/internal/config"
	"github.com/smac-tools/stagebench/internal/serialmux"
	"github.com/smac-tools/stagebench/internal/units"
)

// ErrHomeMacroNotAllowed is returned when homing macro programming is
// attempted without the stage profile acknowledging the hardware.
var ErrHomeMacroNotAllowed = fmt.Errorf(
	"homing macros are hand-tuned for the LCS25-025 stage and may not be programmed " +
		"without setting allow_home_macro in the stage profile")

// ErrOutOfRange is returned when range checking rejects an absolute move.
type ErrOutOfRange struct {
	TargetMM float64
	TravelMM float64
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("target %.3f mm is outside stage travel [0, %.3f] mm", e.TargetMM, e.TravelMM)
}

// Controller is the typed interface to a LAC-1 attached stage. All motion
// and query operations run as prompt-terminated transactions on the
// underlying session.
type Controller struct {
	session *Session
	profile *config.StageProfile
	scale   units.Scale
}

// NewController wraps a session with stage-profile-aware operations. The
// profile supplies encoder scaling, servo parameters, and safety limits; nil
// uses the LCS25-025 defaults.
func NewController(session *Session, profile *config.StageProfile) *Controller {
	if profile == nil {
		profile = config.EmptyStageProfile()
	}
	return &Controller{
		session: session,
		profile: profile,
		scale:   profile.GetScale(),
	}
}

// Dial obtains a port from the factory and returns a controller over it.
// Callers pass a RealSerialPortFactory for hardware and a
// ScriptedPortFactory with the simulator responder in dev mode.
func Dial(factory serialmux.SerialPortFactory, path string, opts serialmux.PortOptions, profile *config.StageProfile) (*Controller, error) {
	port, err := factory.Open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewController(NewSession(port), profile), nil
}

// Session exposes the underlying session for raw command access and
// subscriber taps.
func (c *Controller) Session() *Session {
	return c.session
}

// Profile returns the stage profile in force.
func (c *Controller) Profile() *config.StageProfile {
	return c.profile
}

// Scale returns the unit scale in force.
func (c *Controller) Scale() units.Scale {
	return c.scale
}

// Initialize programs the servo parameters from the stage profile and
// applies conservative velocity and acceleration limits. Callers raise the
// limits afterwards as needed.
func (c *Controller) Initialize(ctx context.Context) error {
	_, err := c.session.Exec(ctx,
		CmdInt("SG", int64(c.profile.GetServoGain())),
		CmdInt("SI", int64(c.profile.GetIntegralGain())),
		CmdInt("SD", int64(c.profile.GetDerivativeGain())),
		CmdInt("IL", int64(c.profile.GetIntegrationLimit())),
		CmdInt("SE", int64(c.profile.GetServoErrorLimit())),
		CmdInt("RI", int64(c.profile.GetDerivativeRate())),
		CmdInt("FR", int64(c.profile.GetFrictionComp())),
	)
	if err != nil {
		return fmt.Errorf("failed to program servo parameters: %w", err)
	}

	if err := c.SetMaxVelocity(ctx, c.profile.GetSafeVelocityMMS()); err != nil {
		return err
	}
	if err := c.SetMaxAcceleration(ctx, c.profile.GetSafeAccelMMSS()); err != nil {
		return err
	}
	return nil
}

// SetMaxVelocity sets the velocity limit in mm/s.
func (c *Controller) SetMaxVelocity(ctx context.Context, mmPerSecond float64) error {
	_, err := c.session.Exec(ctx, CmdInt("SV", c.scale.VelocityArg(mmPerSecond)))
	if err != nil {
		return fmt.Errorf("failed to set max velocity: %w", err)
	}
	return nil
}

// SetMaxAcceleration sets the acceleration limit in mm/s/s.
func (c *Controller) SetMaxAcceleration(ctx context.Context, mmPerSecondSquared float64) error {
	_, err := c.session.Exec(ctx, CmdInt("SA", c.scale.AccelerationArg(mmPerSecondSquared)))
	if err != nil {
		return fmt.Errorf("failed to set max acceleration: %w", err)
	}
	return nil
}

// SetMaxTorque sets the torque limit in raw controller units.
func (c *Controller) SetMaxTorque(ctx context.Context, torque int64) error {
	_, err := c.session.Exec(ctx, CmdInt("SQ", torque))
	if err != nil {
		return fmt.Errorf("failed to set max torque: %w", err)
	}
	return nil
}

// checkRange validates an absolute target against stage travel when the
// profile enables range checking.
func (c *Controller) checkRange(targetEnc int64) error {
	if !c.profile.GetRangeChecking() {
		return nil
	}
	targetMM := c.scale.MMFromEnc(targetEnc)
	travel := c.profile.GetTravelMM()
	if targetMM < 0 || targetMM > travel {
		return &ErrOutOfRange{TargetMM: targetMM, TravelMM: travel}
	}
	return nil
}

// MoveAbsoluteEnc moves to a position in encoder counts. With wait set the
// call blocks until the axis settles (WS10).
func (c *Controller) MoveAbsoluteEnc(ctx context.Context, posEnc int64, wait bool) error {
	if err := c.checkRange(posEnc); err != nil {
		return err
	}
	_, err := c.session.Exec(ctx, Cmd("PM"), Cmd("MN"), CmdInt("MA", posEnc), Cmd("GO"))
	if err != nil {
		return fmt.Errorf("failed to start absolute move: %w", err)
	}
	if wait {
		return c.WaitStop(ctx)
	}
	return nil
}

// MoveAbsoluteMM moves to a position in millimetres.
func (c *Controller) MoveAbsoluteMM(ctx context.Context, posMM float64, wait bool) error {
	return c.MoveAbsoluteEnc(ctx, c.scale.EncFromMM(posMM), wait)
}

// MoveAbsoluteUM moves to a position in micrometres.
func (c *Controller) MoveAbsoluteUM(ctx context.Context, posUM float64, wait bool) error {
	return c.MoveAbsoluteEnc(ctx, c.scale.EncFromUM(posUM), wait)
}

// MoveRelativeEnc moves by a distance in encoder counts. Relative moves are
// not range-checked: the controller clamps at its error limit and the
// homing sequence relies on over-travel into the limit.
func (c *Controller) MoveRelativeEnc(ctx context.Context, distEnc int64, wait bool) error {
	_, err := c.session.Exec(ctx, Cmd("PM"), Cmd("MN"), CmdInt("MR", distEnc), Cmd("GO"))
	if err != nil {
		return fmt.Errorf("failed to start relative move: %w", err)
	}
	if wait {
		return c.WaitStop(ctx)
	}
	return nil
}

// MoveRelativeMM moves by a distance in millimetres.
func (c *Controller) MoveRelativeMM(ctx context.Context, distMM float64, wait bool) error {
	return c.MoveRelativeEnc(ctx, c.scale.EncFromMM(distMM), wait)
}

// PositionEnc returns the current position in encoder counts.
func (c *Controller) PositionEnc(ctx context.Context) (int64, error) {
	lines, err := c.session.Exec(ctx, Cmd("TP"))
	if err != nil {
		return 0, fmt.Errorf("failed to read position: %w", err)
	}
	if len(lines) == 0 {
		return 0, fmt.Errorf("no position data in TP response")
	}
	pos, err := strconv.ParseInt(strings.TrimSpace(lines[0]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse position %q: %w", lines[0], err)
	}
	return pos, nil
}

// PositionMM returns the current position in millimetres.
func (c *Controller) PositionMM(ctx context.Context) (float64, error) {
	pos, err := c.PositionEnc(ctx)
	if err != nil {
		return 0, err
	}
	return c.scale.MMFromEnc(pos), nil
}

// PositionUM returns the current position in micrometres.
func (c *Controller) PositionUM(ctx context.Context) (float64, error) {
	pos, err := c.PositionEnc(ctx)
	if err != nil {
		return 0, err
	}
	return c.scale.UMFromEnc(pos), nil
}

// LastError asks the controller for its last error.
func (c *Controller) LastError(ctx context.Context) (string, error) {
	lines, err := c.session.Exec(ctx, Cmd("TE"))
	if err != nil {
		return "", fmt.Errorf("failed to read last error: %w", err)
	}
	if len(lines) == 0 {
		return "", nil
	}
	return lines[0], nil
}

// Params returns the servo parameter set n as reported by the controller.
func (c *Controller) Params(ctx context.Context, paramSet int) ([]string, error) {
	lines, err := c.session.Exec(ctx, CmdInt("TK", int64(paramSet)))
	if err != nil {
		return nil, fmt.Errorf("failed to read parameter set %d: %w", paramSet, err)
	}
	return lines, nil
}

// Go starts motion previously set up with MA/MR.
func (c *Controller) Go(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("GO"))
	return err
}

// Stop stops motion.
func (c *Controller) Stop(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("ST"))
	return err
}

// Abort aborts motion and any running macro.
func (c *Controller) Abort(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("AB"))
	return err
}

// MotorOn energises the motor.
func (c *Controller) MotorOn(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("MN"))
	return err
}

// MotorOff de-energises the motor.
func (c *Controller) MotorOff(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("MF"))
	return err
}

// GoHome drives to the previously defined home position.
func (c *Controller) GoHome(ctx context.Context) error {
	_, err := c.session.Exec(ctx, Cmd("MN"), Cmd("GH"))
	return err
}

// WaitStop blocks until the axis settles. The controller holds its prompt
// until the wait completes, so the transaction itself provides the blocking.
func (c *Controller) WaitStop(ctx context.Context) error {
	_, err := c.session.Exec(ctx, CmdInt("WS", 10))
	return err
}

// Wait pauses command processing on the controller for the given number of
// milliseconds.
func (c *Controller) Wait(ctx context.Context, intervalMS int64) error {
	_, err := c.session.Exec(ctx, CmdInt("WA", intervalMS))
	return err
}

// Close shuts down the controller and closes the port.
func (c *Controller) Close() error {
	return c.session.Close()
}
