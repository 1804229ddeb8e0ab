package prompts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/aipair/internal/config"
	"github.com/ChamsBouzaiene/aipair/internal/engine"
)

func write(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func gradlePaths(t *testing.T) config.Paths {
	t.Helper()
	root := t.TempDir()
	write(t, root, "build.gradle", "plugins { id 'java' }")
	write(t, root, "src/main/java/App.java", "class App {}")
	write(t, root, "src/test/java/AppTest.java", "class AppTest {}")
	return config.Paths{
		ProjectRoot:   root,
		SrcDir:        filepath.Join(root, "src", "main", "java"),
		TestSourceDir: filepath.Join(root, "src", "test", "java"),
		Extension:     ".java",
		TmpDir:        filepath.Join(root, "tmp"),
	}
}

func TestRender_SubstitutesPlaceholders(t *testing.T) {
	r := NewRenderer(gradlePaths(t), nil)

	out, err := r.Render(context.Background(), engine.PromptInput{
		Template:       "Output:\n{testOutput}\nBuild:\n{buildGradleContent}\nFiles:\n{filesContent}",
		Hints:          []string{"Test failed: AppTest.adds"},
		Failing:        true,
		PreviousOutput: "1 test failed",
	})
	require.NoError(t, err)

	want := "Output:\n1 test failed\nBuild:\nplugins { id 'java' }\nFiles:\n" +
		"File: src/main/java/App.java\n\nclass App {}\n\n" +
		"File: src/test/java/AppTest.java\n\nclass AppTest {}" +
		"\n\nHints for improvement: Test failed: AppTest.adds"
	assert.Equal(t, want, out)
}

func TestRender_UserHints(t *testing.T) {
	r := NewRenderer(gradlePaths(t), nil)
	out, err := r.Render(context.Background(), engine.PromptInput{
		Template: "extend it",
		Hints:    []string{"add a toString", "keep it small"},
	})
	require.NoError(t, err)
	assert.Equal(t, "extend it\n\nUser hints: add a toString; keep it small", out)
}

func TestRender_ValuesAreNotReexpanded(t *testing.T) {
	r := NewRenderer(gradlePaths(t), nil)
	out, err := r.Render(context.Background(), engine.PromptInput{
		Template:       "{testOutput}",
		PreviousOutput: "literal {filesContent}",
	})
	require.NoError(t, err)
	assert.Equal(t, "literal {filesContent}", out)
}

func TestRender_EmptyTemplateUsesDefaults(t *testing.T) {
	r := NewRenderer(gradlePaths(t), nil)

	out, err := r.Render(context.Background(), engine.PromptInput{PreviousOutput: "BUILD FAILED"})
	require.NoError(t, err)
	assert.Contains(t, out, "BUILD FAILED")
	assert.Contains(t, out, "File: src/main/java/App.java")
	assert.NotContains(t, out, "{filesContent}")

	out, err = r.Render(context.Background(), engine.PromptInput{Hints: []string{"rename App"}})
	require.NoError(t, err)
	assert.Contains(t, out, "The build is green")
	assert.Contains(t, out, "User hints: rename App")
}

func TestRender_NoBuildFile(t *testing.T) {
	paths := gradlePaths(t)
	require.NoError(t, os.Remove(filepath.Join(paths.ProjectRoot, "build.gradle")))

	out, err := NewRenderer(paths, nil).Render(context.Background(), engine.PromptInput{Template: "[{buildFileContent}]"})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestRegistry(t *testing.T) {
	r := NewPromptRegistry()
	r.Register(&Prompt{ID: "x", Version: "1.0.0", Content: "one"})
	r.Register(&Prompt{ID: "x", Version: "2.0.0", Content: "two", Deprecated: true})

	p, err := r.GetLatest("x")
	require.NoError(t, err)
	assert.Equal(t, "one", p.Content)

	p, err = r.Get("x", "2.0.0")
	require.NoError(t, err)
	assert.Equal(t, "two", p.Content)

	_, err = r.Get("missing", PromptV1)
	assert.Error(t, err)
	assert.Empty(t, r.Content("missing"))

	assert.Equal(t, []string{IDNoIssue, IDPromptTemplate, IDSystem}, DefaultRegistry().List())
}
