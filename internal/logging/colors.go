package logging

import "github.com/fatih/color"

// levelColor maps a logging level to the fatih/color attribute set used to
// prefix its log lines.
var levelColor = map[Level]*color.Color{
	Error: color.New(color.FgRed, color.Bold),
	Warn:  color.New(color.FgYellow),
	Info:  color.New(color.FgGreen),
	Debug: color.New(color.FgCyan),
}

// colorize wraps s in the ANSI sequence for level, falling back to white for
// trace levels beyond Debug.
func (l Level) colorize(s string) string {
	c, ok := levelColor[l]
	if !ok {
		c = color.New(color.FgWhite)
	}
	return c.Sprint(s)
}
