// Package localfs reads the local project: glob-based discovery of the
// files sent for extraction, and the sandboxed list/read/search tools
// the agentic mode exposes to the model. All access is read-only and
// confined to the workspace root.
package localfs

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crowdin/context-harvester/chunk"
)

// Discover returns the relative paths under root matching any include
// pattern and no ignore pattern. Patterns use doublestar syntax
// ("src/**/*.go"). Results are sorted for deterministic container
// order.
func Discover(root string, include, ignore []string) ([]string, error) {
	rootFS := os.DirFS(root)
	seen := make(map[string]bool)

	for _, pattern := range include {
		matches, err := doublestar.Glob(rootFS, pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			info, err := fs.Stat(rootFS, m)
			if err != nil || info.IsDir() {
				continue
			}
			seen[m] = true
		}
	}

	var paths []string
	for p := range seen {
		ignored := false
		for _, pattern := range ignore {
			if ok, err := doublestar.Match(pattern, p); err == nil && ok {
				ignored = true
				break
			}
		}
		if !ignored {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFiles reads each discovered path into a FileContent. Unreadable
// files are skipped and reported through onWarn rather than failing
// the run.
func ReadFiles(root string, paths []string, onWarn func(format string, args ...any)) []chunk.FileContent {
	var files []chunk.FileContent
	for _, p := range paths {
		data, err := os.ReadFile(filepath.Join(root, p))
		if err != nil {
			if onWarn != nil {
				onWarn("skipping unreadable file %s: %v", p, err)
			}
			continue
		}
		files = append(files, chunk.FileContent{Path: p, Content: string(data)})
	}
	return files
}

// ---------------------------------------------------------------------------
// Agent tools
// ---------------------------------------------------------------------------

// Workspace exposes the read-only filesystem tools the agent may call.
type Workspace struct {
	Root string
}

// maxToolOutput caps every tool response so a single read cannot blow
// the agent's context window.
const maxToolOutput = 48 * 1024

// maxSearchHits caps the number of lines a search returns.
const maxSearchHits = 200

// resolve maps a tool-supplied path onto the workspace, rejecting
// escapes above the root.
func (w *Workspace) resolve(rel string) (string, error) {
	clean := filepath.Clean(rel)
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the project root", rel)
	}
	return filepath.Join(w.Root, clean), nil
}

// List returns the entries of a directory, one per line, directories
// suffixed with a slash.
func (w *Workspace) List(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	full, err := w.resolve(dir)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString(e.Name())
		if e.IsDir() {
			b.WriteString("/")
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

// Read returns a file's content, truncated at maxToolOutput bytes.
func (w *Workspace) Read(path string) (string, error) {
	full, err := w.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	if len(data) > maxToolOutput {
		return string(data[:maxToolOutput]) + "\n[truncated]", nil
	}
	return string(data), nil
}

// Glob returns workspace paths matching a doublestar pattern, one per
// line.
func (w *Workspace) Glob(pattern string) (string, error) {
	matches, err := doublestar.Glob(os.DirFS(w.Root), pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)
	if len(matches) > maxSearchHits {
		matches = matches[:maxSearchHits]
	}
	return strings.Join(matches, "\n"), nil
}

// Search scans workspace files matching filePattern (all files when
// empty) for a literal substring and returns path:line:text hits.
func (w *Workspace) Search(query, filePattern string) (string, error) {
	if query == "" {
		return "", fmt.Errorf("empty search query")
	}
	if filePattern == "" {
		filePattern = "**"
	}

	rootFS := os.DirFS(w.Root)
	matches, err := doublestar.Glob(rootFS, filePattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern %q: %w", filePattern, err)
	}
	sort.Strings(matches)

	var b strings.Builder
	hits := 0
	for _, m := range matches {
		info, err := fs.Stat(rootFS, m)
		if err != nil || info.IsDir() {
			continue
		}
		f, err := rootFS.Open(m)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if strings.Contains(line, query) {
				fmt.Fprintf(&b, "%s:%d:%s\n", m, lineNo, line)
				hits++
				if hits >= maxSearchHits {
					f.Close()
					b.WriteString("[truncated]\n")
					return b.String(), nil
				}
			}
		}
		f.Close()
	}
	if hits == 0 {
		return "no matches", nil
	}
	return b.String(), nil
}
