// Package worker wires the execution core together for one job run:
// container lifecycle, protocol driver, pipeline, credential source, and the
// event sink that consumes the run transcript.
package worker

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/r3t51w/abstruse/internal/docker"
	"github.com/r3t51w/abstruse/internal/job"
	"github.com/r3t51w/abstruse/internal/output"
	"github.com/r3t51w/abstruse/internal/pipeline"
	"github.com/r3t51w/abstruse/internal/proc"
	"github.com/r3t51w/abstruse/internal/protocol"
	"github.com/r3t51w/abstruse/internal/runtimeconfig"
)

// Worker runs job processes. Sink receives every transcript event in order;
// a nil Sink discards the transcript.
type Worker struct {
	Config runtimeconfig.Config
	Runner proc.Runner
	Creds  pipeline.CredentialSource
	Sink   func(output.Event)
	Logger *log.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID     string
	Container string
	Duration  time.Duration
}

// RunJob executes one job against the given image and blocks until the
// pipeline, including its teardown stage, has finished. The returned error
// is the pipeline's terminal error, nil on success.
func (w *Worker) RunJob(ctx context.Context, jp job.Process, image string) (Summary, error) {
	runID := newRunID()
	started := time.Now()

	logger := w.Logger
	if logger != nil {
		logger = logger.With("run_id", runID)
	}

	pl := &pipeline.Pipeline{
		Containers: &docker.Manager{
			Runner: w.Runner,
			Binary: w.Config.DockerBinary,
			Logger: logger,
		},
		Driver: &protocol.Driver{
			Runner:     w.Runner,
			Binary:     w.Config.DockerBinary,
			DetachKeys: w.Config.DetachKeys,
			Wrapper:    w.Config.Wrapper,
			Logger:     logger,
		},
		Creds:  w.Creds,
		Env:    w.Config.Env,
		Logger: logger,
	}

	events := make(chan output.Event, 128)
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for ev := range events {
			if w.Sink != nil {
				w.Sink(ev)
			}
		}
	}()

	err := pl.Run(ctx, jp, image, events)
	<-consumed

	summary := Summary{
		RunID:     runID,
		Container: jp.ContainerName(),
		Duration:  time.Since(started),
	}
	if logger != nil {
		if err != nil {
			logger.Error("run finished with error", "container", summary.Container, "duration", summary.Duration, "err", err)
		} else {
			logger.Info("run finished", "container", summary.Container, "duration", summary.Duration)
		}
	}
	return summary, err
}
