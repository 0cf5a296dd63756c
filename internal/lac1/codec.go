// Package lac1 implements the serial command/response protocol of the SMAC
// LAC-1 motion controller and a typed interface over it.
//
// The controller accepts transmissions of the form
//
//	<command>[<argument>],<command>[<argument>],... <CR>
//
// e.g. SG1000,SD5000<CR>. With echo in force it replies with the echoed
// input, zero or more data lines, and then "\r\n>" when it is ready for the
// next transmission. Lines beginning with '?' report an error.
package lac1

import (
	"strconv"
	"strings"
)

// Command is a single mnemonic with an optional argument.
type Command struct {
	Mnemonic string
	Arg      string
}

// Cmd returns a command with no argument.
func Cmd(mnemonic string) Command {
	return Command{Mnemonic: mnemonic}
}

// CmdInt returns a command with an integer argument.
func CmdInt(mnemonic string, arg int64) Command {
	return Command{Mnemonic: mnemonic, Arg: strconv.FormatInt(arg, 10)}
}

// CmdFloat returns a command with a float argument truncated to an integer.
// The controller does not accept fractional arguments; truncation matches
// its own behaviour.
func CmdFloat(mnemonic string, arg float64) Command {
	return CmdInt(mnemonic, int64(arg))
}

// String renders the command as sent on the wire, e.g. "SG50".
func (c Command) String() string {
	return c.Mnemonic + c.Arg
}

// Encode joins commands into one transmission without the trailing CR,
// e.g. "PM,MN,MA1000,GO".
func Encode(cmds []Command) string {
	parts := make([]string, len(cmds))
	for i, c := range cmds {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// ParseRaw parses a raw command string such as "SG50" or "WS" into a
// Command. The mnemonic is the leading two characters.
func ParseRaw(raw string) (Command, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 {
		return Command{}, false
	}
	return Command{Mnemonic: raw[:2], Arg: raw[2:]}, true
}
