package changes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// BuildFilePredicate reports whether a project-relative path is a build file.
type BuildFilePredicate func(rel string) bool

// Tracker implements engine.ChangeTracker over the source and test trees
// and the build manifests at the project root.
type Tracker struct {
	paths   config.Paths
	isBuild BuildFilePredicate
	now     func() time.Time
}

// Option customises a Tracker.
type Option func(*Tracker)

// WithBuildFilePredicate replaces workspace.IsBuildFile.
func WithBuildFilePredicate(p BuildFilePredicate) Option {
	return func(t *Tracker) { t.isBuild = p }
}

// WithClock sets the snapshot clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker for the project in paths.
func NewTracker(paths config.Paths, opts ...Option) *Tracker {
	t := &Tracker{paths: paths, isBuild: workspace.IsBuildFile, now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Snapshot implements engine.ChangeTracker.
func (t *Tracker) Snapshot(ctx context.Context) (engine.TreeSnapshot, error) {
	root := t.paths.ProjectRoot
	ignore := NewIgnoreMatcher(root, t.paths.TmpDir)
	snap := engine.TreeSnapshot{Files: map[string]string{}}

	record := func(rel, abs string) error {
		if _, seen := snap.Files[rel]; seen {
			return nil
		}
		sum, err := hashFile(abs)
		if err != nil {
			return fmt.Errorf("failed to hash %s: %w", rel, err)
		}
		snap.Files[rel] = sum
		return nil
	}

	for _, dir := range []string{t.paths.SrcDir, t.paths.TestSourceDir} {
		if dir == "" {
			continue
		}
		if err := walk(ctx, root, dir, ignore, record); err != nil {
			return engine.TreeSnapshot{}, fmt.Errorf("failed to snapshot %s: %w", dir, err)
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return engine.TreeSnapshot{}, fmt.Errorf("failed to read project root: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !t.isBuild(e.Name()) {
			continue
		}
		if err := record(e.Name(), filepath.Join(root, e.Name())); err != nil {
			return engine.TreeSnapshot{}, err
		}
	}

	snap.TakenAt = t.now()
	return snap, nil
}

// Diff implements engine.ChangeTracker. Paths are sorted within each set.
func (t *Tracker) Diff(before, after engine.TreeSnapshot) engine.ChangeSummary {
	var newFiles, deleted, modified []string
	for p, sum := range after.Files {
		old, ok := before.Files[p]
		switch {
		case !ok:
			newFiles = append(newFiles, p)
		case old != sum:
			modified = append(modified, p)
		}
	}
	for p := range before.Files {
		if _, ok := after.Files[p]; !ok {
			deleted = append(deleted, p)
		}
	}
	sort.Strings(newFiles)
	sort.Strings(deleted)
	sort.Strings(modified)

	var out engine.ChangeSummary
	for _, p := range newFiles {
		out.NewFiles.Add(p)
	}
	for _, p := range deleted {
		out.DeletedFiles.Add(p)
	}
	for _, p := range modified {
		out.ModifiedFiles.Add(p)
	}
	for _, p := range append(append([]string{}, newFiles...), modified...) {
		if t.isBuild(p) {
			out.BuildFiles.Add(p)
		}
	}
	sort.Strings(out.BuildFiles)

	if !after.TakenAt.IsZero() {
		at := after.TakenAt
		out.LastChangeTime = &at
	}
	return out
}
