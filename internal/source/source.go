// Package source finds the files to audit and prepares their content.
package source

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNoFiles is returned when discovery matches nothing.
var ErrNoFiles = errors.New("no code files found")

// TruncationNote is appended to content cut at the size limit.
const TruncationNote = "\n\nThe source code content was too long. It was cut here. Continue with the audit of the above script as if it was complete until here."

// File is one discovered source file.
type File struct {
	Name string // base name, used as the row key
	Path string
}

// Discover returns the regular files in dir matching any of patterns,
// sorted by name. Subdirectories are not searched.
func Discover(dir string, patterns []string) ([]File, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("samples directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("samples directory %s is not a directory", dir)
	}

	seen := map[string]bool{}
	var files []File
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			fi, err := os.Stat(m)
			if err != nil || !fi.Mode().IsRegular() {
				continue
			}
			seen[m] = true
			files = append(files, File{Name: filepath.Base(m), Path: m})
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s (patterns %s)", ErrNoFiles, dir, strings.Join(patterns, ", "))
	}
	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.Name, b.Name) })
	return files, nil
}

// Read returns the content of f.
func (f File) Read() (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", f.Name, err)
	}
	return string(data), nil
}

// CountLines counts non-blank lines, split into code and documentation.
// Lines starting with #, """ or ' count as documentation.
func CountLines(text string) (code, doc int) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "#"), strings.HasPrefix(line, `"""`), strings.HasPrefix(line, "'"):
			doc++
		default:
			code++
		}
	}
	return code, doc
}

// Truncate cuts content to maxChars characters and appends TruncationNote.
// Content within the limit, or a non-positive limit, is returned unchanged.
func Truncate(content string, maxChars int) (string, bool) {
	if maxChars <= 0 {
		return content, false
	}
	runes := []rune(content)
	if len(runes) <= maxChars {
		return content, false
	}
	return string(runes[:maxChars]) + TruncationNote, true
}
