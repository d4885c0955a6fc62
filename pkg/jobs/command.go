package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/iddaa-lens/jobscheduler/pkg/logger"
)

// maxOutputLog caps how much command output is written to the log
const maxOutputLog = 4096

// CommandJob runs an external command on each fire. The command sees the
// execution context through JOB_NAME, JOB_PARAMETER, JOB_FIRE_ID and
// JOB_MANUAL environment variables.
type CommandJob struct {
	name     string
	schedule string
	command  []string
	dir      string
}

// NewCommandJob creates a command job
func NewCommandJob(name, schedule string, command []string, dir string) (*CommandJob, error) {
	if len(command) == 0 || strings.TrimSpace(command[0]) == "" {
		return nil, fmt.Errorf("%w: command is required for job %s", ErrInvalidConfiguration, name)
	}
	return &CommandJob{
		name:     name,
		schedule: schedule,
		command:  append([]string(nil), command...),
		dir:      dir,
	}, nil
}

func (j *CommandJob) Name() string {
	return j.name
}

func (j *CommandJob) Schedule() string {
	return j.schedule
}

func (j *CommandJob) Execute(ctx context.Context) error {
	log := logger.WithContext(ctx, "command-job")
	ec, _ := FromContext(ctx)

	cmd := exec.CommandContext(ctx, j.command[0], j.command[1:]...)
	cmd.Dir = j.dir
	cmd.Env = append(os.Environ(),
		"JOB_NAME="+j.name,
		"JOB_PARAMETER="+ec.Parameter,
		"JOB_FIRE_ID="+ec.FireID,
		fmt.Sprintf("JOB_MANUAL=%t", ec.Manual),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	log.Debug().
		Str("action", "command_output").
		Str("command", j.command[0]).
		Str("stdout", tail(stdout.String(), maxOutputLog)).
		Str("stderr", tail(stderr.String(), maxOutputLog)).
		Msg("Command finished")

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("command %s exited with code %d: %s", j.command[0], exitErr.ExitCode(), strings.TrimSpace(tail(stderr.String(), 512)))
		}
		return fmt.Errorf("command %s: %w", j.command[0], err)
	}
	return nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
