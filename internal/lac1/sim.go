package lac1

import (
	"strconv"
	"strings"
	"sync"
)

// SimulatorResponder returns a responder for serialmux.ScriptedPort that
// behaves like an idealised LAC-1 attached stage: moves complete instantly,
// TP reports the commanded position, and every transmission is echoed and
// prompt-terminated. It exists so the daemon and benchmark can run without
// hardware in dev mode.
func SimulatorResponder() func(command string) string {
	var mu sync.Mutex
	var pos int64

	return func(command string) string {
		mu.Lock()
		defer mu.Unlock()

		var data []string
		for _, raw := range strings.Split(command, ",") {
			cmd, ok := ParseRaw(raw)
			if !ok {
				continue
			}
			switch cmd.Mnemonic {
			case "MA":
				if v, err := strconv.ParseInt(cmd.Arg, 10, 64); err == nil {
					pos = v
				}
			case "MR":
				if v, err := strconv.ParseInt(cmd.Arg, 10, 64); err == nil {
					pos += v
				}
			case "MS", "GH", "DH":
				// homing and home moves land at zero
				pos = 0
			case "TP":
				data = append(data, strconv.FormatInt(pos, 10))
			case "TE":
				data = append(data, "0")
			case "TK":
				data = append(data, "SG50,SI80,SD600")
			case "TM":
				// macro queries report nothing defined
			}
		}
		return echoWithData(command, data)
	}
}

// echoWithData renders the simulated device output: echoed input, data
// lines, ready prompt.
func echoWithData(command string, data []string) string {
	var b strings.Builder
	b.WriteString(command)
	b.WriteString("\r\n")
	for _, line := range data {
		b.WriteString(line)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n>")
	return b.String()
}
