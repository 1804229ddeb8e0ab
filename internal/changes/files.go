package changes

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// SourceFile is a file read for a prompt.
type SourceFile struct {
	Path    string // slash-separated, relative to the project root
	Content string
}

// CollectFiles reads every file ending in ext under dirs, in walk order,
// honouring the same ignore rules as Snapshot. exclude lists extra
// absolute paths (such as the tmp dir) to skip.
func CollectFiles(ctx context.Context, root string, dirs []string, ext string, exclude ...string) ([]SourceFile, error) {
	ignore := NewIgnoreMatcher(root, exclude...)

	seen := map[string]bool{}
	var files []SourceFile
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		err := walk(ctx, root, dir, ignore, func(rel, abs string) error {
			if seen[rel] || (ext != "" && !strings.HasSuffix(rel, ext)) {
				return nil
			}
			data, err := os.ReadFile(abs)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", rel, err)
			}
			seen[rel] = true
			files = append(files, SourceFile{Path: rel, Content: string(data)})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
