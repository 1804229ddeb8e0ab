package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// Tester runs the project's tests and reads the JUnit reports they leave.
type Tester struct {
	runner Runner
	log    engine.Logger
}

// NewTester creates a Tester. A nil logger discards messages.
func NewTester(runner Runner, log engine.Logger) *Tester {
	if log == nil {
		log = engine.NopLogger{}
	}
	return &Tester{runner: runner, log: log}
}

// Test implements engine.Tester. Test ids are "<class>.<method>". Without
// reports the exit code alone decides.
func (t *Tester) Test(ctx context.Context, paths config.Paths) (engine.TestResult, error) {
	dirs := t.reportDirs(paths)
	for _, dir := range dirs {
		if err := removeReports(dir); err != nil {
			t.log.Warn(fmt.Sprintf("failed to clear stale test reports in %s: %v", dir, err))
		}
	}

	inv, pt, err := run(ctx, t.runner, paths.ProjectRoot, "test", workspace.GetTestCommand)
	if err != nil {
		return engine.TestResult{}, err
	}
	if werr := writeOutput(paths.TmpDir, TestOutputFile, inv.output); werr != nil {
		t.log.Warn(fmt.Sprintf("failed to write test output: %v", werr))
	}

	out := engine.TestResult{Output: inv.output, At: time.Now()}

	var summary Summary
	found := false
	for _, dir := range dirs {
		s, n, err := ParseReportDir(dir)
		if err != nil {
			t.log.Warn(fmt.Sprintf("failed to parse test reports in %s: %v", dir, err))
			continue
		}
		if n > 0 {
			summary.merge(s)
			found = true
		}
	}

	if !found {
		t.log.Debug(fmt.Sprintf("no JUnit reports for %s project, using exit code %d", pt, inv.result.Code))
		out.Passed = inv.result.Code == 0
		return out, nil
	}

	out.TotalTests = summary.Total()
	out.PassedTests = summary.Passed
	out.FailedTests = summary.Failed
	out.ErroredTests = summary.Errored
	out.Passed = len(summary.Failed) == 0 && len(summary.Errored) == 0 && inv.result.Code == 0
	return out, nil
}

// reportDirs returns the configured results dir plus the tool default when
// they differ.
func (t *Tester) reportDirs(paths config.Paths) []string {
	var dirs []string
	if paths.TestResultsDir != "" {
		dirs = append(dirs, paths.TestResultsDir)
	}
	pt := workspace.DetectProjectType(paths.ProjectRoot)
	if rel := workspace.DefaultTestResultsDir(pt); rel != "" {
		def := filepath.Join(paths.ProjectRoot, rel)
		if len(dirs) == 0 || filepath.Clean(dirs[0]) != def {
			dirs = append(dirs, def)
		}
	}
	return dirs
}

// removeReports deletes JUnit XML files left by an earlier run.
func removeReports(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".xml") {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}
