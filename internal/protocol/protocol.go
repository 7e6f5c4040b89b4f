// Package protocol drives a single command to completion over a container's
// interactive attach session. There is no structured RPC into the sandbox:
// command outcome is inferred by matching sentinel substrings that the
// in-image wrapper executable prints on the raw terminal stream.
package protocol

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/r3t51w/abstruse/internal/job"
	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/proc"
)

// Sentinels printed by the in-image wrapper. The match is a plain substring
// match against arbitrary terminal output: a command whose own output
// contains the literal sentinel text will be misclassified. That is a known
// limitation of the wire protocol and is preserved for compatibility.
const (
	successSentinel = "[success]"
	errorSentinel   = "[error]"
)

const (
	// DefaultDetachKeys is the escape sequence sent to leave the attach
	// session without terminating the container process inside it.
	DefaultDetachKeys = "D"

	// DefaultWrapper is the in-image executable that runs the command and
	// prints the outcome sentinel.
	DefaultWrapper = "/usr/bin/abstruse"
)

// SentinelError reports that the wrapper printed the error sentinel. It
// carries the offending output line.
type SentinelError struct {
	Line string
}

func (e *SentinelError) Error() string {
	return fmt.Sprintf("command failed: %s", e.Line)
}

// ExitError reports an attach session that exited non-zero without a success
// sentinel having been observed.
type ExitError struct {
	ExitCode int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command session exited with code %d", e.ExitCode)
}

// Driver executes one command per invocation against a running container's
// attach session.
type Driver struct {
	Runner     proc.Runner
	Binary     string
	DetachKeys string
	Wrapper    string
	Logger     *log.Logger
}

func (d *Driver) binary() string {
	if strings.TrimSpace(d.Binary) == "" {
		return "docker"
	}
	return d.Binary
}

func (d *Driver) detachKeys() string {
	if d.DetachKeys == "" {
		return DefaultDetachKeys
	}
	return d.DetachKeys
}

func (d *Driver) wrapper() string {
	if strings.TrimSpace(d.Wrapper) == "" {
		return DefaultWrapper
	}
	return d.Wrapper
}

// Exec attaches to the container, waits for the first prompt, writes the
// wrapped command, and classifies every subsequent output chunk until the
// session ends. It emits the command echo, the command's visible output, and
// one exit event on success.
//
// The exit-code fallback on session close exists because the sentinel match
// can race with process exit: exit 0 or an already-recorded success counts
// as success, anything else fails the invocation.
func (d *Driver) Exec(ctx context.Context, containerName string, cmd job.Command, emit func(output.Event)) error {
	p, err := d.Runner.Start(ctx, d.binary(), "attach", "--detach-keys="+d.detachKeys(), containerName)
	if err != nil {
		return fmt.Errorf("attach to container %q: %w", containerName, err)
	}

	wrapper := d.wrapper()
	prompted := false
	success := false

	for chunk := range p.Output() {
		if !prompted {
			// First prompt: dispatch the command through the wrapper.
			prompted = true
			if err := p.Write([]byte(fmt.Sprintf("%s '%s'\r", wrapper, cmd.Command))); err != nil {
				_ = p.Kill()
				go discard(p)
				return fmt.Errorf("write command to container %q: %w", containerName, err)
			}
			emit(output.Data("==> " + cmd.Command))
			continue
		}

		switch {
		case strings.Contains(chunk, successSentinel):
			success = true
			if cmd.Type == job.CommandTypeScript {
				emit(output.Data(cleanLine(chunk)))
			}
			// Leave the session without killing the container.
			_ = p.Write([]byte(d.detachKeys()))
		case strings.Contains(chunk, errorSentinel):
			line := cleanLine(chunk)
			if d.Logger != nil {
				d.Logger.Debug("error sentinel observed", "container", containerName, "line", line)
			}
			_ = p.Kill()
			go discard(p)
			return &SentinelError{Line: line}
		default:
			if isNoise(chunk, wrapper) {
				continue
			}
			emit(output.Data(stripPrompt(chunk)))
		}
	}

	code := <-p.Done()
	if code != 0 && !success {
		return &ExitError{ExitCode: code}
	}
	emit(output.Exit(strconv.Itoa(code)))
	return nil
}

// isNoise reports whether a chunk is terminal chatter rather than command
// output: the echo of the wrapper invocation, the trailing exit statement,
// the logout banner, or the detach hint.
func isNoise(chunk, wrapper string) bool {
	return strings.Contains(chunk, wrapper) ||
		strings.Contains(chunk, "exit $?") ||
		strings.Contains(chunk, "logout") ||
		strings.Contains(chunk, "read escape sequence")
}

func cleanLine(chunk string) string {
	return strings.TrimSpace(strings.ReplaceAll(chunk, "\r", ""))
}

func stripPrompt(chunk string) string {
	return strings.TrimPrefix(chunk, "# ")
}

// discard drains a killed session so its reader can finish.
func discard(p proc.Process) {
	for range p.Output() {
	}
	<-p.Done()
}
