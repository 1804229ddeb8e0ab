package toolchain

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/sandbox"
)

// MockRunner is a mock implementation of the Runner interface.
type MockRunner struct {
	RunCmdFunc func(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error)
	calls      [][]string
}

func (m *MockRunner) RunCmd(ctx context.Context, repoDir, name string, args []string, timeout time.Duration) (sandbox.Result, error) {
	m.calls = append(m.calls, append([]string{name}, args...))
	if m.RunCmdFunc != nil {
		return m.RunCmdFunc(ctx, repoDir, name, args, timeout)
	}
	return sandbox.Result{}, nil
}

const report = `<?xml version="1.0" encoding="UTF-8"?>
<testsuite name="com.example.CalculatorTest" tests="4" failures="1" errors="1" skipped="1">
  <testcase name="adds" classname="com.example.CalculatorTest" time="0.01"/>
  <testcase name="divides" classname="com.example.CalculatorTest" time="0.01">
    <failure message="expected: 2 but was: 3">org.opentest4j.AssertionFailedError</failure>
  </testcase>
  <testcase name="parses" classname="com.example.CalculatorTest" time="0.01">
    <error message="boom">java.lang.NullPointerException</error>
  </testcase>
  <testcase name="later" classname="com.example.CalculatorTest"><skipped/></testcase>
</testsuite>`

func gradleProject(t *testing.T) config.Paths {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "build.gradle"), []byte("plugins { id 'java' }"), 0644))
	return config.Paths{
		ProjectRoot:    root,
		TestResultsDir: filepath.Join(root, "build", "test-results", "test"),
		TmpDir:         filepath.Join(root, "tmp"),
	}
}

func writeReport(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestParseReport(t *testing.T) {
	s, err := ParseReport([]byte(report))
	require.NoError(t, err)
	assert.Equal(t, []string{"com.example.CalculatorTest.adds"}, s.Passed)
	assert.Equal(t, []string{"com.example.CalculatorTest.divides"}, s.Failed)
	assert.Equal(t, []string{"com.example.CalculatorTest.parses"}, s.Errored)
	assert.Equal(t, []string{"com.example.CalculatorTest.later"}, s.Skipped)
	assert.Equal(t, 3, s.Total())
}

func TestParseReport_NestedSuites(t *testing.T) {
	doc := `<testsuites>
  <testsuite name="a"><testcase name="one" classname="A"/></testsuite>
  <testsuite name="b"><testcase name="two" classname="B"><failure/></testcase></testsuite>
</testsuites>`
	s, err := ParseReport([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"A.one"}, s.Passed)
	assert.Equal(t, []string{"B.two"}, s.Failed)
}

func TestParseReport_Malformed(t *testing.T) {
	_, err := ParseReport([]byte("<testsuite><testcase"))
	require.Error(t, err)
}

func TestParseReportDir_Missing(t *testing.T) {
	s, n, err := ParseReportDir(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, s.Total())
}

func TestBuilder(t *testing.T) {
	tests := []struct {
		name    string
		result  sandbox.Result
		err     error
		wantOK  bool
		wantEnv bool
	}{
		{name: "compiles", result: sandbox.Result{Stdout: "BUILD SUCCESSFUL"}, wantOK: true},
		{name: "compile error is data", result: sandbox.Result{Stderr: "App.java:3: error: ';' expected", Code: 1}},
		{name: "timeout is data", result: sandbox.Result{TimedOut: true, Code: 1}, err: errors.New("signal: killed")},
		{name: "missing gradle", err: &exec.Error{Name: "gradle", Err: exec.ErrNotFound}, wantEnv: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			paths := gradleProject(t)
			runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
				return tt.result, tt.err
			}}

			res, err := NewBuilder(runner, nil).Build(context.Background(), paths)
			if tt.wantEnv {
				require.Error(t, err)
				assert.True(t, engine.IsEnvironmentError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, res.CompiledSuccessfully)
			assert.Equal(t, []string{"gradle", "--console=plain", "compileJava", "compileTestJava"}, runner.calls[0])

			saved, err := os.ReadFile(filepath.Join(paths.TmpDir, BuildOutputFile))
			require.NoError(t, err)
			assert.Equal(t, res.Output, string(saved))
		})
	}
}

func TestBuilder_UnknownProjectIsEnvironmentError(t *testing.T) {
	_, err := NewBuilder(&MockRunner{}, nil).Build(context.Background(), config.Paths{ProjectRoot: t.TempDir()})
	require.Error(t, err)
	assert.True(t, engine.IsEnvironmentError(err))
}

func TestTester_ReadsReports(t *testing.T) {
	paths := gradleProject(t)
	writeReport(t, paths.TestResultsDir, "TEST-stale.xml", `<testsuite><testcase name="old" classname="Stale"/></testsuite>`)

	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
		writeReport(t, paths.TestResultsDir, "TEST-com.example.CalculatorTest.xml", report)
		return sandbox.Result{Stdout: "2 tests failed", Code: 1}, nil
	}}

	res, err := NewTester(runner, nil).Test(context.Background(), paths)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Equal(t, 3, res.TotalTests)
	assert.Equal(t, []string{"com.example.CalculatorTest.adds"}, res.PassedTests)
	assert.Equal(t, []string{"com.example.CalculatorTest.divides"}, res.FailedTests)
	assert.Equal(t, []string{"com.example.CalculatorTest.parses"}, res.ErroredTests)

	saved, err := os.ReadFile(filepath.Join(paths.TmpDir, TestOutputFile))
	require.NoError(t, err)
	assert.Equal(t, "2 tests failed", string(saved))
}

func TestTester_AllPass(t *testing.T) {
	paths := gradleProject(t)
	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
		writeReport(t, paths.TestResultsDir, "TEST-A.xml", `<testsuite><testcase name="ok" classname="A"/></testsuite>`)
		return sandbox.Result{Stdout: "BUILD SUCCESSFUL"}, nil
	}}

	res, err := NewTester(runner, nil).Test(context.Background(), paths)
	require.NoError(t, err)
	assert.True(t, res.Passed)
	assert.Equal(t, 1, res.TotalTests)
}

func TestTester_FallsBackToExitCode(t *testing.T) {
	paths := gradleProject(t)
	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
		return sandbox.Result{Stdout: "FAILURE: Build failed", Code: 1}, nil
	}}

	res, err := NewTester(runner, nil).Test(context.Background(), paths)
	require.NoError(t, err)
	assert.False(t, res.Passed)
	assert.Zero(t, res.TotalTests)
}

func TestTester_CancelledContext(t *testing.T) {
	paths := gradleProject(t)
	ctx, cancel := context.WithCancel(context.Background())
	runner := &MockRunner{RunCmdFunc: func(context.Context, string, string, []string, time.Duration) (sandbox.Result, error) {
		cancel()
		return sandbox.Result{TimedOut: true}, context.Canceled
	}}

	_, err := NewTester(runner, nil).Test(ctx, paths)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, engine.IsEnvironmentError(err))
}
