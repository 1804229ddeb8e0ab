package toolchain

import (
	"context"
	"fmt"
	"time"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
	"github.com/ChamsBouzaiene/aipair/internal/workspace"
)

// Builder compiles sources and tests with the project's own build tool.
type Builder struct {
	runner Runner
	log    engine.Logger
}

// NewBuilder creates a Builder. A nil logger discards messages.
func NewBuilder(runner Runner, log engine.Logger) *Builder {
	if log == nil {
		log = engine.NopLogger{}
	}
	return &Builder{runner: runner, log: log}
}

// Build implements engine.Builder.
func (b *Builder) Build(ctx context.Context, paths config.Paths) (engine.BuildResult, error) {
	inv, pt, err := run(ctx, b.runner, paths.ProjectRoot, "build", workspace.GetBuildCommand)
	if err != nil {
		return engine.BuildResult{}, err
	}

	ok := inv.result.Code == 0
	b.log.Debug(fmt.Sprintf("%s build (%s) exited with code %d", pt, inv.cmd, inv.result.Code))
	if werr := writeOutput(paths.TmpDir, BuildOutputFile, inv.output); werr != nil {
		b.log.Warn(fmt.Sprintf("failed to write build output: %v", werr))
	}

	return engine.BuildResult{
		CompiledSuccessfully: ok,
		Output:               inv.output,
		At:                   time.Now(),
	}, nil
}
