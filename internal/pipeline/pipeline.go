// Package pipeline sequences one job run as a single ordered event stream:
// container start, optional debug endpoints, one attach-session execution
// per command, and a teardown that runs exactly once no matter how the run
// ends.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/kballard/go-shellquote"
	"github.com/r3t51w/abstruse/internal/docker"
	"github.com/r3t51w/abstruse/internal/job"
	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/protocol"
)

// Debug endpoint setup, run strictly in this order when a job requests
// SSH/VNC access.
const (
	sshStartCommand  = "sudo /etc/init.d/ssh start"
	xvfbStartCommand = "export DISPLAY=:99 && Xvfb :99 -screen 0 1920x1080x16 & sleep 1 && fluxbox &"
	vncStartCommand  = "x11vnc -display :99 -forever -bg -nopw -xkb"

	sshPort = 22
	vncPort = 5900
)

// Teardown is best-effort and must not hang a finished run.
const stopTimeout = 30 * time.Second

// Credential is a network credential injected into the sandbox as a netrc
// entry before user commands run.
type Credential struct {
	Machine  string
	Login    string
	Password string
}

// CredentialSource looks up repository credentials by build. Lookup returns
// false when the build has no stored credential.
type CredentialSource interface {
	Lookup(ctx context.Context, buildID uint) (Credential, bool, error)
}

// Pipeline composes the stages of one job run. Env carries operator-supplied
// override variables applied after the job's own environment.
type Pipeline struct {
	Containers *docker.Manager
	Driver     *protocol.Driver
	Creds      CredentialSource
	Env        []string
	Logger     *log.Logger
}

// Run executes the job against the given image, writing the ordered event
// transcript to events. Stages run strictly in sequence and the first error
// aborts all remaining command stages. The stop stage runs exactly once and always
// last, on success, failure, and cancellation alike; on failure the captured
// error is re-emitted as a final data event after the teardown event.
//
// Run closes events before returning. The consumer should drain the channel
// until it closes; after cancellation, undeliverable events are dropped
// rather than blocking teardown.
func (p *Pipeline) Run(ctx context.Context, jp job.Process, image string, events chan<- output.Event) error {
	defer close(events)

	name := jp.ContainerName()
	emit := func(ev output.Event) {
		select {
		case events <- ev:
			return
		default:
		}
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	if p.Logger != nil {
		p.Logger.Info("job run starting", "container", name, "image", image, "commands", len(jp.Commands))
	}

	runErr := p.Containers.Start(ctx, name, image, injectionArgs(jp, p.Env), emit)
	if runErr == nil {
		runErr = p.runStages(ctx, jp, name, emit)
	}

	// Teardown runs on a fresh context so an externally cancelled run is
	// still torn down.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()
	_ = p.Containers.Stop(stopCtx, name, emit)

	if runErr != nil {
		emit(output.Data(runErr.Error()))
		if p.Logger != nil {
			p.Logger.Error("job run failed", "container", name, "err", runErr)
		}
		return runErr
	}

	if p.Logger != nil {
		p.Logger.Info("job run finished", "container", name)
	}
	return nil
}

func (p *Pipeline) runStages(ctx context.Context, jp job.Process, name string, emit func(output.Event)) error {
	if jp.SSHAndVNC {
		if err := p.runDebugStages(ctx, name, emit); err != nil {
			return err
		}
	}

	if err := p.injectNetrc(ctx, jp, name, emit); err != nil {
		return err
	}

	for _, cmd := range jp.Commands {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Driver.Exec(ctx, name, cmd, emit); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) runDebugStages(ctx context.Context, name string, emit func(output.Event)) error {
	setup := []func() error{
		func() error { return p.exec(ctx, name, sshStartCommand, emit) },
		func() error { return p.Containers.ExposedPort(ctx, name, sshPort, emit) },
		func() error { return p.exec(ctx, name, xvfbStartCommand, emit) },
		func() error { return p.exec(ctx, name, vncStartCommand, emit) },
		func() error { return p.Containers.ExposedPort(ctx, name, vncPort, emit) },
	}
	for _, stage := range setup {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := stage(); err != nil {
			return err
		}
	}
	return nil
}

// injectNetrc writes a netrc entry into the sandbox when the credential
// source has one for this build. A lookup failure skips injection rather
// than failing the run: credentials are an optional collaborator.
func (p *Pipeline) injectNetrc(ctx context.Context, jp job.Process, name string, emit func(output.Event)) error {
	if p.Creds == nil {
		return nil
	}
	cred, ok, err := p.Creds.Lookup(ctx, jp.BuildID)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn("credential lookup failed, skipping netrc injection", "build_id", jp.BuildID, "err", err)
		}
		return nil
	}
	if !ok {
		return nil
	}
	write := fmt.Sprintf(`printf "machine %s\nlogin %s\npassword %s\n" > ~/.netrc && chmod 600 ~/.netrc`,
		cred.Machine, cred.Login, cred.Password)
	return p.exec(ctx, name, write, emit)
}

func (p *Pipeline) exec(ctx context.Context, name, command string, emit func(output.Event)) error {
	cmd := job.Command{Type: job.CommandTypeBeforeInstall, Command: command}
	return p.Driver.Exec(ctx, name, cmd, emit)
}

// injectionArgs derives the container's -e flags from, in fixed precedence
// order: export statements found in the command list, the job's own
// environment assignments, and operator overrides. Entries are not
// deduplicated; the container runtime applies the last one.
func injectionArgs(jp job.Process, overrides []string) []string {
	var args []string
	for _, cmd := range jp.Commands {
		text := strings.TrimSpace(cmd.Command)
		if !strings.HasPrefix(text, "export ") {
			continue
		}
		words, err := shellquote.Split(text)
		if err != nil {
			continue
		}
		for _, word := range words[1:] {
			if strings.Contains(word, "=") {
				args = append(args, "-e", word)
			}
		}
	}
	for _, env := range jp.Env {
		args = append(args, "-e", env)
	}
	for _, env := range overrides {
		args = append(args, "-e", env)
	}
	return args
}
