package toolchain

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Summary is the per-outcome test id sets read from JUnit reports.
type Summary struct {
	Passed  []string
	Failed  []string
	Errored []string
	Skipped []string
}

// Total counts executed tests; skipped tests are not counted.
func (s Summary) Total() int {
	return len(s.Passed) + len(s.Failed) + len(s.Errored)
}

func (s *Summary) merge(o Summary) {
	s.Passed = append(s.Passed, o.Passed...)
	s.Failed = append(s.Failed, o.Failed...)
	s.Errored = append(s.Errored, o.Errored...)
	s.Skipped = append(s.Skipped, o.Skipped...)
}

// junitSuite decodes both <testsuites> and <testsuite> roots.
type junitSuite struct {
	Name   string       `xml:"name,attr"`
	Suites []junitSuite `xml:"testsuite"`
	Cases  []junitCase  `xml:"testcase"`
}

type junitCase struct {
	Name      string    `xml:"name,attr"`
	ClassName string    `xml:"classname,attr"`
	Failure   *struct{} `xml:"failure"`
	Error     *struct{} `xml:"error"`
	Skipped   *struct{} `xml:"skipped"`
}

func (c junitCase) id() string {
	if c.ClassName == "" {
		return c.Name
	}
	return c.ClassName + "." + c.Name
}

// ParseReport parses one JUnit XML document.
func ParseReport(data []byte) (Summary, error) {
	var root junitSuite
	if err := xml.Unmarshal(data, &root); err != nil {
		return Summary{}, fmt.Errorf("failed to parse JUnit report: %w", err)
	}
	var s Summary
	collect(&s, root)
	return s, nil
}

func collect(s *Summary, suite junitSuite) {
	for _, c := range suite.Cases {
		switch {
		case c.Error != nil:
			s.Errored = append(s.Errored, c.id())
		case c.Failure != nil:
			s.Failed = append(s.Failed, c.id())
		case c.Skipped != nil:
			s.Skipped = append(s.Skipped, c.id())
		default:
			s.Passed = append(s.Passed, c.id())
		}
	}
	for _, child := range suite.Suites {
		collect(s, child)
	}
}

// ParseReportDir parses every *.xml file in dir, in name order, and returns
// the merged summary and the number of reports read. A missing dir is empty.
func ParseReportDir(dir string) (Summary, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Summary{}, 0, nil
		}
		return Summary{}, 0, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var total Summary
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return Summary{}, 0, err
		}
		s, err := ParseReport(data)
		if err != nil {
			return Summary{}, 0, fmt.Errorf("%s: %w", name, err)
		}
		total.merge(s)
	}
	return total, len(names), nil
}
