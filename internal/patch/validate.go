package patch

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ForbiddenPaths are paths that generated code may never write.
var ForbiddenPaths = []string{
	".env",
	".env.*",
	".git",
	".github",
	".idea",
	".vscode",
	".gitignore",
	".gitattributes",
	"gradlew",
	"gradle/wrapper",
	"node_modules",
	"build/",
	"target/",
}

// testFileName matches common test source names across toolchains.
var testFileName = regexp.MustCompile(`(^Test\w*\.(java|kt)$)|(\w+Tests?\.(java|kt|groovy)$)|(_test\.go$)|(\.(test|spec)\.[jt]sx?$)|(^test_\w+\.py$)`)

// validatePath checks a repo-relative path from a File: header and returns
// the cleaned relative path.
func validatePath(root, rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty file path")
	}
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(root, rel)
		if err != nil {
			return "", fmt.Errorf("path %s is outside the project", rel)
		}
		rel = r
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %s escapes the project root", rel)
	}
	if err := isForbiddenPath(clean); err != nil {
		return "", err
	}
	return clean, nil
}

// isForbiddenPath checks if a path matches any forbidden pattern.
func isForbiddenPath(path string) error {
	normalizedLower := strings.ToLower(filepath.ToSlash(path))
	segments := strings.Split(normalizedLower, "/")

	for _, forbidden := range ForbiddenPaths {
		forbiddenLower := strings.ToLower(forbidden)
		switch {
		case strings.HasSuffix(forbiddenLower, "*"):
			prefix := strings.TrimSuffix(forbiddenLower, "*")
			if strings.HasPrefix(segments[len(segments)-1], prefix) {
				return fmt.Errorf("path %s matches forbidden pattern: %s", path, forbidden)
			}
		case strings.HasSuffix(forbiddenLower, "/"):
			if strings.HasPrefix(normalizedLower, forbiddenLower) {
				return fmt.Errorf("path %s is a build output", path)
			}
		case strings.Contains(forbiddenLower, "/"):
			if strings.HasPrefix(normalizedLower, forbiddenLower) {
				return fmt.Errorf("path %s contains forbidden pattern: %s", path, forbidden)
			}
		default:
			for _, seg := range segments {
				if seg == forbiddenLower {
					return fmt.Errorf("path %s contains forbidden pattern: %s", path, forbidden)
				}
			}
		}
	}
	return nil
}

// IsTestFile reports whether rel is a test source: it lives under testDir
// (both relative to the project root) or has a test file name.
func IsTestFile(rel, testDir string) bool {
	rel = filepath.ToSlash(filepath.Clean(rel))
	if testDir != "" {
		td := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(testDir)), "/")
		if td != "." && (rel == td || strings.HasPrefix(rel, td+"/")) {
			return true
		}
	}
	return testFileName.MatchString(filepath.Base(rel))
}
