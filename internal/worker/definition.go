package worker

import (
	"fmt"
	"os"

	"github.com/r3t51w/abstruse/internal/job"
	"gopkg.in/yaml.v3"
)

// Definition is the YAML description of one job: its identifiers, image,
// environment, and the commands of each lifecycle phase.
type Definition struct {
	BuildID uint `yaml:"build_id"`
	JobID   uint `yaml:"job_id"`

	Image     string   `yaml:"image"`
	Env       []string `yaml:"env"`
	SSHAndVNC bool     `yaml:"ssh_and_vnc"`

	BeforeInstall []string `yaml:"before_install"`
	Install       []string `yaml:"install"`
	BeforeScript  []string `yaml:"before_script"`
	Script        []string `yaml:"script"`
	AfterScript   []string `yaml:"after_script"`
}

func LoadDefinition(path string) (Definition, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("read job definition %s: %w", path, err)
	}

	def := Definition{}
	if err := yaml.Unmarshal(b, &def); err != nil {
		return Definition{}, fmt.Errorf("parse job definition %s: %w", path, err)
	}
	if len(def.Script) == 0 {
		return Definition{}, fmt.Errorf("job definition %s has no script commands", path)
	}
	return def, nil
}

// Process flattens the definition's lifecycle phases into the ordered
// command list of a job process.
func (d Definition) Process() job.Process {
	var commands []job.Command
	appendPhase := func(phase job.CommandType, texts []string) {
		for _, text := range texts {
			commands = append(commands, job.Command{Type: phase, Command: text})
		}
	}
	appendPhase(job.CommandTypeBeforeInstall, d.BeforeInstall)
	appendPhase(job.CommandTypeInstall, d.Install)
	appendPhase(job.CommandTypeBeforeScript, d.BeforeScript)
	appendPhase(job.CommandTypeScript, d.Script)
	appendPhase(job.CommandTypeAfterScript, d.AfterScript)

	return job.Process{
		BuildID:   d.BuildID,
		JobID:     d.JobID,
		Commands:  commands,
		Env:       append([]string(nil), d.Env...),
		SSHAndVNC: d.SSHAndVNC,
	}
}
