// Package patch applies LLM-generated file blocks to a target directory.
// The wire format is a sequence of delimited blocks:
//
//	<<<FILE: relative/path>>>
//	...content...
//	<<<END_FILE>>>
//
// Paths resolving outside the target root are rejected.
package patch

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var fileBlockRe = regexp.MustCompile(`(?s)<<<FILE: (.*?)>>>\s*(.*?)<<<END_FILE>>>`)

// Apply parses file blocks out of an LLM response and writes them under
// root. It returns the relative paths written. A response with no blocks is
// not an error; it returns an empty list (the model may have chatted instead
// of coding). Unsafe paths are skipped with a log line.
func Apply(root, response string) ([]string, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	matches := fileBlockRe.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		preview := response
		if len(preview) > 500 {
			preview = preview[:500]
		}
		log.Printf("[patch] no file blocks found in response; preview: %s", preview)
		return nil, nil
	}

	var modified []string
	for _, m := range matches {
		relPath := strings.TrimSpace(m[1])
		content := strings.TrimSpace(m[2])

		if filepath.IsAbs(relPath) {
			log.Printf("[patch] skipping unsafe path: %s", relPath)
			continue
		}

		fullPath := filepath.Join(rootAbs, relPath)
		fullAbs, err := filepath.Abs(fullPath)
		if err != nil || !withinRoot(rootAbs, fullAbs) {
			log.Printf("[patch] skipping unsafe path: %s", relPath)
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fullAbs), 0o755); err != nil {
			return modified, fmt.Errorf("create directory for %s: %w", relPath, err)
		}
		if err := os.WriteFile(fullAbs, []byte(content), 0o644); err != nil {
			return modified, fmt.Errorf("write %s: %w", relPath, err)
		}
		modified = append(modified, relPath)
	}
	return modified, nil
}

// withinRoot reports whether target is root or inside it.
func withinRoot(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(os.PathSeparator))
}
