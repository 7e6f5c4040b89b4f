// Package docker manages the per-job container sandbox by shelling out to
// the container runtime CLI. The subcommand arguments are part of the
// compatibility contract with the runtime and must not drift.
package docker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/proc"
)

const DefaultBinary = "docker"

// Sandbox resource limits. Every job container runs with the same bounds.
const (
	memoryLimit = "2048M"
	cpuLimit    = "2"
)

// StartError reports a container runtime launch that exited non-zero.
type StartError struct {
	ExitCode int
}

func (e *StartError) Error() string {
	return fmt.Sprintf("container start failed with exit code %d", e.ExitCode)
}

// Manager starts and removes job sandboxes. Start is idempotent by name and
// Stop is unconditional, so "call Stop exactly once on every exit path" is
// sufficient for teardown correctness.
type Manager struct {
	Runner proc.Runner
	Binary string
	Logger *log.Logger
}

func (m *Manager) binary() string {
	if strings.TrimSpace(m.Binary) == "" {
		return DefaultBinary
	}
	return m.Binary
}

// Start force-removes any stale container with the same name, then launches
// a new detached interactive container with the fixed resource limits plus
// the caller-supplied arguments (environment injections). It emits one
// container event on success.
func (m *Manager) Start(ctx context.Context, name, image string, extraArgs []string, emit func(output.Event)) error {
	// Removal failures are ignored: the name may simply be unused.
	_, _, _ = proc.Capture(ctx, m.Runner, m.binary(), "rm", "-f", name)

	args := []string{
		"run",
		"-dit",
		"--security-opt=seccomp:unconfined",
		"-P",
		"-m=" + memoryLimit,
		"--cpus=" + cpuLimit,
	}
	args = append(args, extraArgs...)
	args = append(args, "--name", name, image)

	out, code, err := proc.Capture(ctx, m.Runner, m.binary(), args...)
	if err != nil {
		return fmt.Errorf("launch container %q: %w", name, err)
	}
	if code != 0 {
		if m.Logger != nil {
			m.Logger.Error("container start failed", "name", name, "exit_code", code, "output", strings.TrimSpace(out))
		}
		return &StartError{ExitCode: code}
	}

	if m.Logger != nil {
		m.Logger.Debug("container started", "name", name, "image", image)
	}
	emit(output.Container(fmt.Sprintf("Container %s successfully started.", name)))
	return nil
}

// Stop force-removes the container and emits one container event. It is
// best-effort: removal failures are swallowed so teardown can never block
// pipeline completion.
func (m *Manager) Stop(ctx context.Context, name string, emit func(output.Event)) error {
	if _, _, err := proc.Capture(ctx, m.Runner, m.binary(), "rm", "-f", name); err != nil && m.Logger != nil {
		m.Logger.Warn("container removal failed", "name", name, "err", err)
	}
	emit(output.Container(fmt.Sprintf("Container %s successfully stopped.", name)))
	return nil
}

// ExposedPort queries the host port published for the container's internal
// port and emits one exposedPort event formatted as "<internal>:<host>".
// Absence of a binding emits nothing and is not an error; the caller treats
// it as "not yet published".
func (m *Manager) ExposedPort(ctx context.Context, name string, internalPort int, emit func(output.Event)) error {
	out, _, err := proc.Capture(ctx, m.Runner, m.binary(), "port", name, strconv.Itoa(internalPort))
	if err != nil {
		return fmt.Errorf("query port %d of container %q: %w", internalPort, name, err)
	}

	hostPort, ok := parseHostPort(out)
	if !ok {
		return nil
	}
	emit(output.ExposedPort(fmt.Sprintf("%d:%s", internalPort, hostPort)))
	return nil
}

// parseHostPort extracts the host port from the first binding line of a
// `port` query, e.g. "0.0.0.0:32768".
func parseHostPort(out string) (string, bool) {
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		i := strings.LastIndex(line, ":")
		if i < 0 || i == len(line)-1 {
			continue
		}
		return line[i+1:], true
	}
	return "", false
}
