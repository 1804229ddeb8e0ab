package sandbox

import (
	"context"
	"time"
)

// Result captures output of a command.
type Result struct {
	Stdout   string
	Stderr   string
	Code     int
	TimedOut bool
}

// Combined returns stdout followed by stderr, the way a terminal would show them.
func (r Result) Combined() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Runner runs build tool commands against the user's project.
type Runner interface {
	// RunCmd runs a command in the given project directory with a timeout.
	// A non-zero exit is reported through Result.Code; the error is
	// reserved for commands that could not be started or were cut short.
	// A timeout <= 0 uses the runner's default.
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (Result, error)
}
