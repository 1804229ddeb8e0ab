package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxBuildHints   = 5
	maxHintLen      = 300
	buildOutputTail = 15
)

// providerHint explains a failed generation call.
func providerHint(model string, err error) string {
	return truncate(fmt.Sprintf("Code generation with %s failed: %v", model, err), maxHintLen)
}

// applyHint explains why generated output could not be applied.
func applyHint(err error) string {
	return truncate(fmt.Sprintf("The previous response could not be applied: %v. "+
		"Return every changed file as a 'File: <path>' header followed by a fenced code block.", err), maxHintLen)
}

// buildHints extracts compiler error lines from build output. When no line
// looks like an error the tail of the output is used instead.
func buildHints(output string) []string {
	var hints []string
	seen := map[string]bool{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !looksLikeError(line) || seen[line] {
			continue
		}
		seen[line] = true
		hints = append(hints, "Build error: "+truncate(line, maxHintLen))
		if len(hints) == maxBuildHints {
			break
		}
	}
	if len(hints) > 0 {
		return hints
	}

	tail := lastLines(strings.TrimSpace(output), buildOutputTail)
	if tail == "" {
		return []string{"Build failed without output."}
	}
	return []string{"Build failed: " + truncate(tail, maxHintLen)}
}

func looksLikeError(line string) bool {
	l := strings.ToLower(line)
	return strings.Contains(l, "error:") ||
		strings.HasPrefix(l, "error") ||
		strings.Contains(l, "cannot find symbol") ||
		strings.Contains(l, "undefined:") ||
		strings.Contains(l, "compilation failed")
}

// testHints produces one hint per failed or errored test.
func testHints(res TestResult) []string {
	var hints []string
	for _, id := range res.FailedTests {
		hints = append(hints, "Test failed: "+id)
	}
	for _, id := range res.ErroredTests {
		hints = append(hints, "Test errored: "+id)
	}
	if len(hints) == 0 {
		tail := lastLines(strings.TrimSpace(res.Output), buildOutputTail)
		hints = append(hints, "Tests failed: "+truncate(tail, maxHintLen))
	}
	return hints
}

func lastLines(s string, n int) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
