// Package proc abstracts the spawning of container-runtime subprocesses so
// the execution core can be exercised against a fake runner in tests.
package proc

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"strings"
)

// Process is a handle on a running subprocess with the four capabilities the
// execution core needs: reading raw output chunks, writing to stdin,
// observing the exit code, and killing the process.
type Process interface {
	// Output delivers raw stdout+stderr chunks as they are read. The
	// channel is closed once the process closes its output.
	Output() <-chan string

	// Write sends bytes to the process's stdin.
	Write(p []byte) error

	// Done delivers the process exit code exactly once, then is closed.
	Done() <-chan int

	// Kill terminates the process immediately.
	Kill() error
}

// Runner starts subprocesses. The real implementation shells out via
// os/exec; tests substitute a scripted fake.
type Runner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecRunner runs subprocesses with os/exec, merging stderr into the stdout
// stream. Output is delivered in read-sized chunks rather than lines so that
// interactive prompts without a trailing newline still arrive.
type ExecRunner struct{}

func (ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p := &execProcess{
		cmd:   cmd,
		stdin: stdin,
		out:   make(chan string, 64),
		done:  make(chan int, 1),
	}
	go p.pump(stdout)
	return p, nil
}

type execProcess struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan string
	done  chan int
}

func (p *execProcess) pump(r io.Reader) {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			p.out <- string(buf[:n])
		}
		if err != nil {
			break
		}
	}
	close(p.out)

	code := 0
	if err := p.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = 1
		}
	}
	p.done <- code
	close(p.done)
}

func (p *execProcess) Output() <-chan string { return p.out }

func (p *execProcess) Done() <-chan int { return p.done }

func (p *execProcess) Write(b []byte) error {
	_, err := p.stdin.Write(b)
	return err
}

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Kill()
}

// Capture runs a subprocess to completion and returns its combined output
// and exit code. Used for one-shot utility invocations where no interaction
// is needed.
func Capture(ctx context.Context, r Runner, name string, args ...string) (string, int, error) {
	p, err := r.Start(ctx, name, args...)
	if err != nil {
		return "", -1, err
	}

	var out strings.Builder
	for chunk := range p.Output() {
		out.WriteString(chunk)
	}
	return out.String(), <-p.Done(), nil
}
