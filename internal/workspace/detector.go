package workspace

import (
	"os"
	"path/filepath"
	"strings"
)

// ProjectType represents the type of project.
type ProjectType string

const (
	ProjectTypeGradle  ProjectType = "gradle"
	ProjectTypeMaven   ProjectType = "maven"
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeRust    ProjectType = "rust"
	ProjectTypeUnknown ProjectType = "unknown"
)

// manifests in detection order.
var manifests = []struct {
	name string
	kind ProjectType
}{
	{"build.gradle.kts", ProjectTypeGradle},
	{"build.gradle", ProjectTypeGradle},
	{"pom.xml", ProjectTypeMaven},
	{"go.mod", ProjectTypeGo},
	{"package.json", ProjectTypeNode},
	{"pyproject.toml", ProjectTypePython},
	{"requirements.txt", ProjectTypePython},
	{"Cargo.toml", ProjectTypeRust},
}

// buildFileNames are file names that describe a build rather than code.
var buildFileNames = map[string]bool{
	"build.gradle":        true,
	"build.gradle.kts":    true,
	"settings.gradle":     true,
	"settings.gradle.kts": true,
	"gradle.properties":   true,
	"pom.xml":             true,
	"go.mod":              true,
	"go.sum":              true,
	"package.json":        true,
	"pyproject.toml":      true,
	"requirements.txt":    true,
	"setup.py":            true,
	"Cargo.toml":          true,
}

// IsBuildFile reports whether path names a build manifest.
func IsBuildFile(path string) bool {
	return buildFileNames[filepath.Base(path)]
}

// DetectProjectType detects the project type using manifest-first detection with extension fallback.
func DetectProjectType(repoRoot string) ProjectType {
	for _, m := range manifests {
		if _, err := os.Stat(filepath.Join(repoRoot, m.name)); err == nil {
			return m.kind
		}
	}

	// Extension fallback: scan repo root for common file extensions
	entries, err := os.ReadDir(repoRoot)
	if err != nil {
		return ProjectTypeUnknown
	}

	extCounts := make(map[string]int)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if ext := strings.ToLower(filepath.Ext(entry.Name())); ext != "" {
			extCounts[ext]++
		}
	}

	counts := []struct {
		kind  ProjectType
		count int
	}{
		{ProjectTypeGo, extCounts[".go"]},
		{ProjectTypeNode, extCounts[".ts"] + extCounts[".tsx"] + extCounts[".js"] + extCounts[".jsx"]},
		{ProjectTypePython, extCounts[".py"]},
		{ProjectTypeRust, extCounts[".rs"]},
	}

	maxCount := 0
	detectedType := ProjectTypeUnknown
	for _, c := range counts {
		if c.count > maxCount {
			maxCount = c.count
			detectedType = c.kind
		}
	}

	// Only trust the fallback with a reasonable number of files
	if maxCount >= 3 {
		return detectedType
	}
	return ProjectTypeUnknown
}

// BuildFileFor returns the manifest that identified projectType in repoRoot,
// or "" if none exists.
func BuildFileFor(repoRoot string, projectType ProjectType) string {
	for _, m := range manifests {
		if m.kind != projectType {
			continue
		}
		p := filepath.Join(repoRoot, m.name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// gradleExecutable prefers the project wrapper when present.
func gradleExecutable(repoRoot string) string {
	if info, err := os.Stat(filepath.Join(repoRoot, "gradlew")); err == nil && info.Mode()&0111 != 0 {
		return "./gradlew"
	}
	return "gradle"
}

// GetBuildCommand returns the command that compiles sources and tests.
func GetBuildCommand(repoRoot string, projectType ProjectType) (string, []string) {
	switch projectType {
	case ProjectTypeGradle:
		return gradleExecutable(repoRoot), []string{"--console=plain", "compileJava", "compileTestJava"}
	case ProjectTypeMaven:
		return "mvn", []string{"-B", "-q", "test-compile"}
	case ProjectTypeGo:
		return "go", []string{"vet", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"run", "build", "--if-present"}
	case ProjectTypePython:
		return "python", []string{"-m", "compileall", "-q", "."}
	case ProjectTypeRust:
		return "cargo", []string{"build", "--tests"}
	default:
		return "", nil
	}
}

// GetTestCommand returns the test command for a project type.
func GetTestCommand(repoRoot string, projectType ProjectType) (string, []string) {
	switch projectType {
	case ProjectTypeGradle:
		return gradleExecutable(repoRoot), []string{"--console=plain", "test"}
	case ProjectTypeMaven:
		return "mvn", []string{"-B", "test"}
	case ProjectTypeGo:
		return "go", []string{"test", "./..."}
	case ProjectTypeNode:
		return "npm", []string{"test"}
	case ProjectTypePython:
		return "pytest", []string{"--junitxml=build/test-results/test/pytest.xml"}
	case ProjectTypeRust:
		return "cargo", []string{"test"}
	default:
		return "", nil
	}
}

// DefaultTestResultsDir returns where the toolchain writes JUnit XML reports,
// relative to the project root.
func DefaultTestResultsDir(projectType ProjectType) string {
	switch projectType {
	case ProjectTypeGradle, ProjectTypePython:
		return filepath.Join("build", "test-results", "test")
	case ProjectTypeMaven:
		return filepath.Join("target", "surefire-reports")
	default:
		return ""
	}
}
