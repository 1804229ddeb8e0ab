package changes

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are directories and files never tracked.
var DefaultIgnorePatterns = []string{
	".git",
	".gradle",
	"node_modules",
	"dist",
	"build",
	"target",
	"vendor",
	"__pycache__",
	"coverage",
	".cache",
	"bin",
	"obj",
	".idea",
	".vscode",
	".DS_Store",
	"*.orig",
}

// NewIgnoreMatcher compiles the default patterns, the root .gitignore and
// the excluded absolute paths (such as the tmp dir) into one matcher over
// slash-separated paths relative to root.
func NewIgnoreMatcher(root string, exclude ...string) gitignore.IgnoreParser {
	patterns := make([]string, 0, len(DefaultIgnorePatterns)+len(exclude)+10)
	patterns = append(patterns, DefaultIgnorePatterns...)
	if lines, err := readGitignoreLines(filepath.Join(root, ".gitignore")); err == nil {
		patterns = append(patterns, lines...)
	}
	for _, p := range exclude {
		if rel := relTo(root, p); rel != "" {
			patterns = append(patterns, rel)
		}
	}
	return gitignore.CompileIgnoreLines(patterns...)
}

// readGitignoreLines reads patterns from a .gitignore file.
func readGitignoreLines(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// walk calls fn for every regular file under dir that the matcher keeps.
// rel is slash-separated and relative to root. A missing dir is skipped.
func walk(ctx context.Context, root, dir string, ignore gitignore.IgnoreParser, fn func(rel, abs string) error) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel != "." && ignore.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		return fn(rel, path)
	})
}

// hashFile returns the hex sha256 of a file's content.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// relTo returns p relative to root as a gitignore pattern anchored at the
// root, or "" when p is outside root.
func relTo(root, p string) string {
	if p == "" {
		return ""
	}
	rel, err := filepath.Rel(root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return "/" + filepath.ToSlash(rel)
}
