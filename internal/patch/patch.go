package patch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

var (
	// ErrNoFileBlocks means the response held no File: blocks.
	ErrNoFileBlocks = errors.New("no file blocks found in generated code")
	// ErrNothingApplied means every block was refused.
	ErrNothingApplied = errors.New("every generated file was refused")
)

// OrigSuffix marks the archived pre-change copy of a file.
const OrigSuffix = ".orig"

// CycleDir is <tmpDir>/generationCycle<N>.
func CycleDir(tmpDir string, cycle int) string {
	return filepath.Join(tmpDir, "generationCycle"+strconv.Itoa(cycle))
}

// ChangesDir is where a cycle's written files are archived.
func ChangesDir(tmpDir string, cycle int) string {
	return filepath.Join(CycleDir(tmpDir, cycle), "changes")
}

// ClearCycles removes every generationCycle<N> dir under tmpDir. A new run
// calls it so file artifacts never mix two runs.
func ClearCycles(tmpDir string) error {
	dirs, err := filepath.Glob(filepath.Join(tmpDir, "generationCycle*"))
	if err != nil {
		return err
	}
	for _, d := range dirs {
		if err := os.RemoveAll(d); err != nil {
			return fmt.Errorf("failed to clear %s: %w", d, err)
		}
	}
	return nil
}

// Applier writes generated file blocks into the project.
type Applier struct {
	root    string
	testDir string // relative to root
	tmpDir  string
	log     engine.Logger
}

// NewApplier creates an Applier. testSourceDir may be absolute or relative to
// projectRoot; files under it are never written.
func NewApplier(projectRoot, testSourceDir, tmpDir string, log engine.Logger) *Applier {
	if log == nil {
		log = engine.NopLogger{}
	}
	testDir := testSourceDir
	if filepath.IsAbs(testDir) {
		if rel, err := filepath.Rel(projectRoot, testDir); err == nil {
			testDir = rel
		}
	}
	return &Applier{root: projectRoot, testDir: testDir, tmpDir: tmpDir, log: log}
}

// Apply implements engine.Applier. Refused blocks are listed in Skipped.
// Filesystem failures are environment errors; a response with nothing
// applicable is a plain error the cycle recovers from.
func (a *Applier) Apply(ctx context.Context, cycle int, code string) (engine.ApplyResult, error) {
	var res engine.ApplyResult

	blocks := ParseBlocks(code)
	if len(blocks) == 0 {
		return res, ErrNoFileBlocks
	}

	changesDir := ChangesDir(a.tmpDir, cycle)
	// Archives left by an earlier run would pass for this cycle's originals.
	if err := os.RemoveAll(changesDir); err != nil {
		return res, engine.NewEnvironmentError("apply", fmt.Errorf("failed to clear %s: %w", changesDir, err))
	}
	for _, b := range blocks {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		rel, err := validatePath(a.root, b.Path)
		if err != nil {
			a.log.Warn(fmt.Sprintf("skipping generated file: %v", err))
			res.Skipped = append(res.Skipped, b.Path)
			continue
		}
		if IsTestFile(rel, a.testDir) {
			a.log.Warn(fmt.Sprintf("attempted to modify a test file: %s", rel))
			res.Skipped = append(res.Skipped, rel)
			continue
		}

		if err := a.write(changesDir, rel, b.Content); err != nil {
			return res, engine.NewEnvironmentError("apply", err)
		}
		res.Written = append(res.Written, rel)
	}

	if len(res.Written) == 0 {
		return res, fmt.Errorf("%w: %v", ErrNothingApplied, res.Skipped)
	}
	a.log.Info(fmt.Sprintf("wrote %d file(s) for cycle %d", len(res.Written), cycle))
	return res, nil
}

// write archives the current version of rel, then replaces it.
func (a *Applier) write(changesDir, rel, content string) error {
	full := filepath.Join(a.root, rel)
	archive := filepath.Join(changesDir, rel)
	if err := os.MkdirAll(filepath.Dir(archive), 0755); err != nil {
		return fmt.Errorf("failed to create archive dir: %w", err)
	}

	if orig, err := os.ReadFile(full); err == nil {
		if err := os.WriteFile(archive+OrigSuffix, orig, 0644); err != nil {
			return fmt.Errorf("failed to archive %s: %w", rel, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read %s: %w", rel, err)
	}
	if err := os.WriteFile(archive, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to archive %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return fmt.Errorf("failed to create dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}
	return nil
}

// Change is a file's archived before/after pair for one cycle.
type Change struct {
	Path     string
	Original string
	Updated  string
	Created  bool // no original existed
}

// LoadChange reads the archive written by Apply for rel in cycle.
func LoadChange(tmpDir string, cycle int, rel string) (Change, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return Change{}, fmt.Errorf("invalid path %q", rel)
	}
	archive := filepath.Join(ChangesDir(tmpDir, cycle), clean)

	updated, err := os.ReadFile(archive)
	if err != nil {
		return Change{}, fmt.Errorf("no archived change for %s in cycle %d: %w", rel, cycle, err)
	}
	c := Change{Path: filepath.ToSlash(clean), Updated: string(updated)}

	orig, err := os.ReadFile(archive + OrigSuffix)
	switch {
	case err == nil:
		c.Original = string(orig)
	case os.IsNotExist(err):
		c.Created = true
	default:
		return Change{}, err
	}
	return c, nil
}
