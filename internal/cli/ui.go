package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/r3t51w/abstruse/internal/output"
	"golang.org/x/term"
)

type doctorCheck struct {
	Name    string
	Status  string // pass|fail
	Message string
}

func renderEvent(ev output.Event, color bool) string {
	switch ev.Type {
	case output.TypeContainer:
		if color {
			return ansiWrap("1;36", ev.Data)
		}
		return ev.Data
	case output.TypeExposedPort:
		line := "exposed port " + ev.Data
		if color {
			return ansiWrap("38;5;252", line)
		}
		return line
	case output.TypeExit:
		line := "exit status " + ev.Data
		if color {
			return ansiWrap("2", line)
		}
		return line
	default:
		return strings.TrimRight(ev.Data, "\r\n")
	}
}

func renderDoctorReport(checks []doctorCheck, color bool) string {
	var out strings.Builder
	title := "doctor report"
	if color {
		title = ansiWrap("1;36", title)
	}
	out.WriteString(title)
	out.WriteByte('\n')

	for _, check := range checks {
		status := strings.ToUpper(check.Status)
		if color {
			if check.Status == "pass" {
				status = ansiWrap("1;32", status)
			} else {
				status = ansiWrap("1;31", status)
			}
		}
		out.WriteString(fmt.Sprintf("  %s %s: %s\n", status, check.Name, check.Message))
	}
	return out.String()
}

func ansiWrap(code, s string) string {
	return "\x1b[" + code + "m" + s + "\x1b[0m"
}

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
