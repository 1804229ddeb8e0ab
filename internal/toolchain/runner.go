package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/sandbox"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// Runner runs one command. sandbox.Runner satisfies it; tests mock it.
type Runner interface {
	RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
}

// Output files written to tmpDir after every run.
const (
	BuildOutputFile = "build_output.txt"
	TestOutputFile  = "test_output.txt"
)

// command resolves the build tool command for the project at root.
type command func(root string, pt workspace.ProjectType) (string, []string)

// invocation is the result of running one build tool command.
type invocation struct {
	cmd    string
	result sandbox.Result
	output string
}

// run detects the project type, runs the command from pick and classifies
// failures. Errors returned are always fatal to the run: the tool is missing,
// the project type is unknown, or ctx ended.
func run(ctx context.Context, runner Runner, root, op string, pick command) (invocation, workspace.ProjectType, error) {
	pt := workspace.DetectProjectType(root)
	name, args := pick(root, pt)
	if name == "" {
		return invocation{}, pt, engine.NewEnvironmentError(op,
			fmt.Errorf("no %s command for project type %q in %s", op, pt, root))
	}

	inv := invocation{cmd: strings.TrimSpace(name + " " + strings.Join(args, " "))}
	res, err := runner.RunCmd(ctx, root, name, args, 0)
	inv.result = res
	inv.output = res.Combined()

	if err != nil {
		if ctx.Err() != nil {
			return inv, pt, ctx.Err()
		}
		if isMissingExecutable(err, res) {
			return inv, pt, engine.NewEnvironmentError(op, fmt.Errorf("%s: %w", inv.cmd, err))
		}
		if res.TimedOut {
			// A hung compiler or test is the generated code's fault.
			inv.result.Code = 1
			inv.output = strings.TrimSpace(inv.output + "\n" + inv.cmd + " timed out")
			return inv, pt, nil
		}
		return inv, pt, engine.NewEnvironmentError(op, fmt.Errorf("%s: %w", inv.cmd, err))
	}
	return inv, pt, nil
}

func isMissingExecutable(err error, res sandbox.Result) bool {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "executable file not found") ||
		strings.Contains(res.Stdout, "command not found") ||
		strings.Contains(res.Stderr, "command not found")
}

// writeOutput stores output under tmpDir. The file is best-effort.
func writeOutput(tmpDir, name, output string) error {
	if tmpDir == "" {
		return nil
	}
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(tmpDir, name), []byte(output), 0644)
}
