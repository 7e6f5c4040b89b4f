package docker

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/proc"
)

// fakeProcess completes immediately with scripted output and exit code.
type fakeProcess struct {
	out  chan string
	done chan int
}

func newFakeProcess(out string, exitCode int) *fakeProcess {
	p := &fakeProcess{
		out:  make(chan string, 1),
		done: make(chan int, 1),
	}
	if out != "" {
		p.out <- out
	}
	close(p.out)
	p.done <- exitCode
	close(p.done)
	return p
}

func (p *fakeProcess) Output() <-chan string { return p.out }
func (p *fakeProcess) Done() <-chan int      { return p.done }
func (p *fakeProcess) Write([]byte) error    { return nil }
func (p *fakeProcess) Kill() error           { return nil }

// fakeRunner replays scripted results per invocation, recording every call.
type fakeRunner struct {
	calls   [][]string
	results []*fakeProcess
	errs    []error
}

func (r *fakeRunner) Start(_ context.Context, name string, args ...string) (proc.Process, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	i := len(r.calls) - 1
	if i < len(r.errs) && r.errs[i] != nil {
		return nil, r.errs[i]
	}
	if i < len(r.results) {
		return r.results[i], nil
	}
	return newFakeProcess("", 0), nil
}

func collectEvents() (func(output.Event), *[]output.Event) {
	events := &[]output.Event{}
	return func(ev output.Event) {
		*events = append(*events, ev)
	}, events
}

func TestStartRemovesStaleContainerFirst(t *testing.T) {
	runner := &fakeRunner{results: []*fakeProcess{
		newFakeProcess("", 1), // stale removal may fail, must be ignored
		newFakeProcess("c0ffee\n", 0),
	}}
	m := &Manager{Runner: runner}

	emit, events := collectEvents()
	err := m.Start(context.Background(), "abstruse_1_2", "abstruse:stable", nil, emit)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if len(runner.calls) != 2 {
		t.Fatalf("expected rm then run, got %v", runner.calls)
	}
	rm := strings.Join(runner.calls[0], " ")
	if rm != "docker rm -f abstruse_1_2" {
		t.Fatalf("unexpected removal invocation: %q", rm)
	}
	run := strings.Join(runner.calls[1], " ")
	want := "docker run -dit --security-opt=seccomp:unconfined -P -m=2048M --cpus=2 --name abstruse_1_2 abstruse:stable"
	if run != want {
		t.Fatalf("unexpected run invocation:\n got %q\nwant %q", run, want)
	}

	got := *events
	if len(got) != 1 || got[0].Type != output.TypeContainer {
		t.Fatalf("expected exactly one container event, got %v", got)
	}
	if got[0].Data != "Container abstruse_1_2 successfully started." {
		t.Fatalf("unexpected container event payload: %q", got[0].Data)
	}
}

func TestStartInjectsExtraArgsBeforeName(t *testing.T) {
	runner := &fakeRunner{}
	m := &Manager{Runner: runner}

	emit, _ := collectEvents()
	extra := []string{"-e", "FOO=bar", "-e", "BAZ=qux"}
	if err := m.Start(context.Background(), "abstruse_3_4", "img", extra, emit); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	run := strings.Join(runner.calls[1], " ")
	if !strings.Contains(run, "--cpus=2 -e FOO=bar -e BAZ=qux --name abstruse_3_4 img") {
		t.Fatalf("expected injections between resource limits and name, got %q", run)
	}
}

func TestStartReportsLaunchExitCode(t *testing.T) {
	runner := &fakeRunner{results: []*fakeProcess{
		newFakeProcess("", 0),
		newFakeProcess("no such image\n", 125),
	}}
	m := &Manager{Runner: runner}

	emit, events := collectEvents()
	err := m.Start(context.Background(), "abstruse_1_2", "missing:latest", nil, emit)

	var startErr *StartError
	if !errors.As(err, &startErr) {
		t.Fatalf("expected StartError, got %v", err)
	}
	if startErr.ExitCode != 125 {
		t.Fatalf("unexpected exit code: %d", startErr.ExitCode)
	}
	if len(*events) != 0 {
		t.Fatalf("expected no events on failed start, got %v", *events)
	}
}

func TestStopSwallowsRemovalFailure(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("daemon gone")}}
	m := &Manager{Runner: runner}

	emit, events := collectEvents()
	if err := m.Stop(context.Background(), "abstruse_1_2", emit); err != nil {
		t.Fatalf("Stop must be best-effort, got error: %v", err)
	}

	got := *events
	if len(got) != 1 || got[0].Data != "Container abstruse_1_2 successfully stopped." {
		t.Fatalf("expected one teardown container event, got %v", got)
	}
}

func TestExposedPortEmitsHostBinding(t *testing.T) {
	runner := &fakeRunner{results: []*fakeProcess{
		newFakeProcess("0.0.0.0:32768\n[::]:32768\n", 0),
	}}
	m := &Manager{Runner: runner}

	emit, events := collectEvents()
	if err := m.ExposedPort(context.Background(), "abstruse_1_2", 22, emit); err != nil {
		t.Fatalf("ExposedPort returned error: %v", err)
	}

	call := strings.Join(runner.calls[0], " ")
	if call != "docker port abstruse_1_2 22" {
		t.Fatalf("unexpected port query: %q", call)
	}
	got := *events
	if len(got) != 1 || got[0].Type != output.TypeExposedPort || got[0].Data != "22:32768" {
		t.Fatalf("unexpected exposed port events: %v", got)
	}
}

func TestExposedPortWithoutBindingEmitsNothing(t *testing.T) {
	runner := &fakeRunner{results: []*fakeProcess{newFakeProcess("", 1)}}
	m := &Manager{Runner: runner}

	emit, events := collectEvents()
	if err := m.ExposedPort(context.Background(), "abstruse_1_2", 5900, emit); err != nil {
		t.Fatalf("absent binding must not be an error, got: %v", err)
	}
	if len(*events) != 0 {
		t.Fatalf("expected no events without a binding, got %v", *events)
	}
}

func TestManagerBinaryOverride(t *testing.T) {
	runner := &fakeRunner{}
	m := &Manager{Runner: runner, Binary: "podman"}

	emit, _ := collectEvents()
	_ = m.Stop(context.Background(), "abstruse_1_2", emit)
	if runner.calls[0][0] != "podman" {
		t.Fatalf("expected configured binary, got %v", runner.calls[0])
	}
}
