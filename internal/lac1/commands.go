package lac1

// Allow list of two character command mnemonics accepted from external
// surfaces (the HTTP command endpoint and stagectl send). Anything not on
// this list is refused before it reaches the wire.
var allowedCommands = []string{
	// Motion
	"GO", // start motion; MA/MR alone do not move the axis
	"ST", // stop motion
	"AB", // abort motion and macro execution
	"MA", // move absolute (encoder counts)
	"MR", // move relative (encoder counts)
	"GH", // go home (previously defined home position)
	"DH", // define home at given position
	"PM", // enter position mode
	"VM", // enter velocity mode
	"TM", // torque mode / macro query depending on context
	"DI", // set motion direction

	// Motor control
	"MN", // motor on
	"MF", // motor off

	// Servo parameters
	"SG", // servo gain (proportional)
	"SI", // servo integral gain
	"SD", // servo derivative gain
	"IL", // integration limit
	"SE", // servo error limit
	"RI", // derivative sampling rate
	"FR", // friction compensation
	"SV", // set max velocity (scaled counts per servo loop)
	"SA", // set max acceleration (scaled)
	"SQ", // set max torque

	// Waiting
	"WS", // wait for stop, argument in ms of settle time
	"WA", // wait the given number of milliseconds

	// Reporting
	"TP", // tell position (encoder counts)
	"TE", // tell last error
	"TK", // tell servo parameter set
	"TT", // tell target position

	// Macros. Defining (MD) and resetting (RM) macros is excluded: the homing
	// programmer is the only writer of macros and goes through its own flow.
	"MC", // macro call
	"MS", // macro select/start
	"MJ", // macro jump
	"RP", // repeat

	// Registers and accumulator
	"AL", // accumulator load
	"AR", // copy accumulator to register
	"RW", // read word from memory
	"IB", // if below, execute next two commands
	"NO", // no-op

	// Echo control
	"EF", // echo off
	"EN", // echo on
}

// IsAllowedCommand reports whether the mnemonic is on the allow list.
func IsAllowedCommand(mnemonic string) bool {
	for _, allowed := range allowedCommands {
		if mnemonic == allowed {
			return true
		}
	}
	return false
}
