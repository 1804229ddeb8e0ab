package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/patch"
)

// LogPath is tmpDir/generationCycle<N>/<kind>.log.
func LogPath(tmpDir string, cycle int, kind Kind) string {
	return filepath.Join(patch.CycleDir(tmpDir, cycle), string(kind)+".log")
}

// ReadLog reads a cycle log file written by a Recorder.
func ReadLog(tmpDir string, cycle int, kind Kind) (string, error) {
	if _, err := kind.column(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(LogPath(tmpDir, cycle, kind))
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%s log of cycle %d: %w", kind, cycle, ErrNotFound)
	}
	return string(data), err
}

// Recorder is an engine.Hook that persists every run and cycle to a Store
// and writes the cycle artifacts as log files under tmpDir. Persistence
// failures are logged, never returned to the orchestrator.
type Recorder struct {
	engine.NopHook

	store  *Store
	tmpDir string
	log    engine.Logger
	now    func() time.Time
}

// NewRecorder creates a Recorder. store may be nil to only write log files.
func NewRecorder(store *Store, tmpDir string, log engine.Logger) *Recorder {
	if log == nil {
		log = engine.NopLogger{}
	}
	return &Recorder{store: store, tmpDir: tmpDir, log: log, now: time.Now}
}

// OnRunStart implements engine.Hook. Cycle log files of the previous run
// are removed; its artifacts stay in the store.
func (r *Recorder) OnRunStart(ctx context.Context, runID string, st engine.CycleState) {
	if r.tmpDir != "" {
		if err := patch.ClearCycles(r.tmpDir); err != nil {
			r.log.Warn(fmt.Sprintf("history: %v", err))
		}
	}
	if r.store == nil {
		return
	}
	if err := r.store.StartRun(context.WithoutCancel(ctx), runID, st.ActiveModel, r.now()); err != nil {
		r.log.Warn(fmt.Sprintf("history: %v", err))
	}
}

// OnCycleEnd implements engine.Hook.
func (r *Recorder) OnCycleEnd(ctx context.Context, rec engine.CycleRecord, art engine.CycleArtifacts, _ engine.CycleState) {
	r.writeLogs(rec.Number, art)
	if r.store == nil {
		return
	}
	err := r.store.RecordCycle(context.WithoutCancel(ctx), Cycle{
		RunID:      art.RunID,
		Number:     rec.Number,
		Model:      rec.Model,
		Stage:      rec.Result,
		Prompt:     art.Prompt,
		Generation: art.Generation,
		BuildLog:   art.BuildLog,
		TestLog:    art.TestLog,
		Changes:    art.Changes,
		Hints:      rec.Hints,
		StartedAt:  rec.StartedAt,
		EndedAt:    rec.EndedAt,
	})
	if err != nil {
		r.log.Warn(fmt.Sprintf("history: %v", err))
	}
}

// OnDone implements engine.Hook.
func (r *Recorder) OnDone(ctx context.Context, rep engine.Report) {
	if r.store == nil || rep.RunID == "" {
		return
	}
	if err := r.store.FinishRun(context.WithoutCancel(ctx), rep, r.now()); err != nil {
		r.log.Warn(fmt.Sprintf("history: %v", err))
	}
}

func (r *Recorder) writeLogs(cycle int, art engine.CycleArtifacts) {
	if r.tmpDir == "" {
		return
	}
	if err := os.MkdirAll(patch.CycleDir(r.tmpDir, cycle), 0755); err != nil {
		r.log.Warn(fmt.Sprintf("history: failed to create cycle dir: %v", err))
		return
	}
	for kind, content := range map[Kind]string{
		KindPrompt:     art.Prompt,
		KindGeneration: art.Generation,
		KindBuild:      art.BuildLog,
		KindTest:       art.TestLog,
	} {
		if content == "" {
			continue
		}
		if err := os.WriteFile(LogPath(r.tmpDir, cycle, kind), []byte(content), 0644); err != nil {
			r.log.Warn(fmt.Sprintf("history: failed to write %s log: %v", kind, err))
		}
	}
}
