package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/r3t51w/abstruse/internal/creds"
	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/pipeline"
	"github.com/r3t51w/abstruse/internal/proc"
	"github.com/r3t51w/abstruse/internal/runtimeconfig"
	"github.com/r3t51w/abstruse/internal/worker"
)

type runtimeContext struct {
	Stdout     *os.File
	Config     runtimeconfig.Config
	ConfigPath string
	Runner     proc.Runner
	Version    string
}

type CLI struct {
	Run     RunCommand     `cmd:"" help:"Run a job inside an ephemeral container sandbox"`
	Doctor  DoctorCommand  `cmd:"" help:"Diagnose the container runtime environment"`
	Version VersionCommand `cmd:"" help:"Print the worker version"`
}

type RunCommand struct {
	LogLevel string   `help:"Log level (debug|info|warn|error)"`
	Image    string   `help:"Container image (overrides the job definition and config default)"`
	Env      []string `short:"e" help:"Extra environment variables injected into the sandbox (KEY=VALUE)"`
	Debug    bool     `help:"Open SSH and VNC debug endpoints before running commands"`

	JobFile string `arg:"" help:"Job definition YAML file"`
}

type DoctorCommand struct{}

type VersionCommand struct{}

type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("command failed with exit code %d", e.code)
}

func (e exitCodeError) ExitCode() int {
	return e.code
}

type hasExitCode interface {
	ExitCode() int
}

func Run(args []string, version string) error {
	cfg, cfgPath, err := runtimeconfig.Load()
	if err != nil {
		return err
	}

	runtimeCtx := &runtimeContext{
		Stdout:     os.Stdout,
		Config:     cfg,
		ConfigPath: cfgPath,
		Runner:     proc.ExecRunner{},
		Version:    version,
	}

	cli := CLI{}
	parser, err := kong.New(
		&cli,
		kong.Name("abstruse-worker"),
		kong.Description("Abstruse CI build-execution worker"),
	)
	if err != nil {
		return err
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return ctx.Run(runtimeCtx)
}

func ExitCode(err error) int {
	var codeErr hasExitCode
	if errors.As(err, &codeErr) {
		return codeErr.ExitCode()
	}
	return 1
}

func (c *RunCommand) Run(rc *runtimeContext) error {
	logger, err := newLogger(c.LogLevel, "worker")
	if err != nil {
		return err
	}

	def, err := worker.LoadDefinition(c.JobFile)
	if err != nil {
		return err
	}
	jp := def.Process()
	if c.Debug {
		jp.SSHAndVNC = true
	}

	image := firstNonEmpty(c.Image, def.Image, rc.Config.DefaultImage)
	if image == "" {
		return errors.New("no container image configured: set --image, the job definition's image, or default_image in " + rc.ConfigPath)
	}

	cfg := rc.Config
	cfg.Env = append(append([]string(nil), cfg.Env...), c.Env...)

	var source pipeline.CredentialSource
	if dbPath, err := cfg.CredentialsDBPath(); err == nil {
		store, err := creds.Open(dbPath)
		if err != nil {
			logger.Warn("credential store unavailable", "path", dbPath, "err", err)
		} else {
			source = store
		}
	}

	color := isTerminal(rc.Stdout)
	w := &worker.Worker{
		Config: cfg,
		Runner: rc.Runner,
		Creds:  source,
		Sink: func(ev output.Event) {
			fmt.Fprintln(rc.Stdout, renderEvent(ev, color))
		},
		Logger: logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := w.RunJob(ctx, jp, image)
	if err != nil {
		return exitCodeError{code: 1}
	}
	logger.Info("job succeeded", "run_id", summary.RunID, "duration", summary.Duration)
	return nil
}

func (c *DoctorCommand) Run(rc *runtimeContext) error {
	binary := strings.TrimSpace(rc.Config.DockerBinary)
	if binary == "" {
		binary = "docker"
	}

	var checks []doctorCheck
	appendCheck := func(name, status, message string) {
		checks = append(checks, doctorCheck{Name: name, Status: status, Message: message})
	}

	if _, err := exec.LookPath(binary); err != nil {
		appendCheck("binary", "fail", fmt.Sprintf("container runtime binary %q not found in PATH", binary))
	} else {
		appendCheck("binary", "pass", fmt.Sprintf("found container runtime binary %q", binary))
	}

	out, code, err := proc.Capture(context.Background(), rc.Runner, binary, "version", "--format", "{{.Server.Version}}")
	if err != nil || code != 0 {
		appendCheck("daemon", "fail", "container runtime daemon is not reachable")
	} else {
		appendCheck("daemon", "pass", fmt.Sprintf("daemon reachable, server version %s", strings.TrimSpace(out)))
	}

	if _, err := fmt.Fprint(rc.Stdout, renderDoctorReport(checks, isTerminal(rc.Stdout))); err != nil {
		return err
	}
	for _, check := range checks {
		if check.Status == "fail" {
			return exitCodeError{code: 1}
		}
	}
	return nil
}

func (c *VersionCommand) Run(rc *runtimeContext) error {
	_, err := fmt.Fprintln(rc.Stdout, rc.Version)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func newLogger(rawLevel, component string) (*log.Logger, error) {
	levelName := strings.TrimSpace(strings.ToLower(rawLevel))
	if levelName == "" {
		levelName = "info"
	}
	level, err := log.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", rawLevel, err)
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{
		Level:     level,
		Formatter: log.TextFormatter,
	})
	return logger.With("component", component), nil
}
