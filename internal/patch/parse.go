package patch

import (
	"regexp"
	"strings"
)

// Block is one file in a generated response.
type Block struct {
	Path    string
	Content string
}

var (
	// headerRe matches "File: <path>" and "// File: <path>" header lines,
	// optionally decorated as markdown.
	headerRe    = regexp.MustCompile("(?m)^[ \\t]*(?:#+[ \\t]*)?(?:\\*\\*)?(?://[ \\t]*)?File:[ \\t]*([^\\n]+?)[ \\t]*$")
	fenceLineRe = regexp.MustCompile("(?m)^[ \\t]*```")
	fenceRe     = regexp.MustCompile("(?s)```[\\w.+-]*[ \\t]*\\n(.*?)```")
)

// ParseBlocks splits generated text into file blocks. Each block runs from a
// header line to the next header outside a code fence. The first fenced code
// block in it is the content; without a fence the rest of the block is.
// Blocks with no content are dropped.
func ParseBlocks(text string) []Block {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	headers := outsideFences(text, headerRe.FindAllStringSubmatchIndex(text, -1))

	var blocks []Block
	for i, h := range headers {
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		path := strings.Trim(text[h[2]:h[3]], "`*\"' ")
		body := text[h[1]:end]

		var content string
		if m := fenceRe.FindStringSubmatch(body); m != nil {
			content = strings.TrimSpace(m[1])
		} else {
			content = strings.TrimSpace(body)
		}
		if path == "" || content == "" {
			continue
		}
		blocks = append(blocks, Block{Path: path, Content: content + "\n"})
	}
	return blocks
}

// outsideFences drops header matches that sit inside a fenced code block,
// such as a "// File: App.java" comment on the first line of the code.
func outsideFences(text string, headers [][]int) [][]int {
	fences := fenceLineRe.FindAllStringIndex(text, -1)
	if len(fences) == 0 {
		return headers
	}
	inFence := func(pos int) bool {
		open := false
		for _, f := range fences {
			if f[0] > pos {
				break
			}
			open = !open
		}
		return open
	}

	kept := headers[:0]
	for _, h := range headers {
		if !inFence(h[0]) {
			kept = append(kept, h)
		}
	}
	return kept
}
