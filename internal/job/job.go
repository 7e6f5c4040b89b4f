// Package job holds the immutable description of a single build job
// execution request.
package job

import "fmt"

const containerPrefix = "abstruse"

// CommandType tags a command with the lifecycle phase it belongs to.
type CommandType string

const (
	CommandTypeBeforeInstall CommandType = "before_install"
	CommandTypeInstall       CommandType = "install"
	CommandTypeBeforeScript  CommandType = "before_script"
	CommandTypeScript        CommandType = "script"
	CommandTypeAfterSuccess  CommandType = "after_success"
	CommandTypeAfterFailure  CommandType = "after_failure"
	CommandTypeBeforeDeploy  CommandType = "before_deploy"
	CommandTypeDeploy        CommandType = "deploy"
	CommandTypeAfterDeploy   CommandType = "after_deploy"
	CommandTypeAfterScript   CommandType = "after_script"
)

// Command is one shell command to run inside the sandbox.
type Command struct {
	Type    CommandType
	Command string
}

// Process identifies one execution request. It is constructed by the caller,
// handed to the pipeline once, and never mutated during the run.
type Process struct {
	BuildID   uint
	JobID     uint
	Commands  []Command
	Env       []string
	SSHAndVNC bool
}

// ContainerName derives the sandbox name for a (build, job) pair. The
// derivation is a pure function, so starting a run is idempotent by
// construction: any stale container with the same name is force-removed
// before a new one starts.
func ContainerName(buildID, jobID uint) string {
	return fmt.Sprintf("%s_%d_%d", containerPrefix, buildID, jobID)
}

// ContainerName returns the sandbox name for this process.
func (p Process) ContainerName() string {
	return ContainerName(p.BuildID, p.JobID)
}
