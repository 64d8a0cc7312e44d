package source

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.py", "x = 1\n")
	writeFile(t, dir, "a.py", "y = 2\n")
	writeFile(t, dir, "notes.txt", "hello\n")
	writeFile(t, dir, "c.go", "package c\n")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "pkg.py"), 0o755))

	files, err := Discover(dir, []string{"*.py"})
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "a.py", files[0].Name)
	assert.Equal(t, "b.py", files[1].Name)

	files, err = Discover(dir, []string{"*.py", "*.go", "a.*"})
	require.NoError(t, err)
	assert.Len(t, files, 3)

	content, err := files[0].Read()
	require.NoError(t, err)
	assert.Equal(t, "y = 2\n", content)
}

func TestDiscoverErrors(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "missing"), []string{"*.py"})
	assert.Error(t, err)

	_, err = Discover(t.TempDir(), []string{"*.py"})
	assert.True(t, errors.Is(err, ErrNoFiles))

	_, err = Discover(t.TempDir(), []string{"["})
	assert.Error(t, err)
}

func TestCountLines(t *testing.T) {
	text := strings.Join([]string{
		"#!/usr/bin/env python3",
		`"""Module docstring."""`,
		"",
		"import os",
		"   ",
		"def main():",
		"    # comment",
		"    print('hi')",
		"    'inline string'",
	}, "\n")

	code, doc := CountLines(text)
	assert.Equal(t, 3, code)
	assert.Equal(t, 4, doc)

	code, doc = CountLines("")
	assert.Zero(t, code)
	assert.Zero(t, doc)
}

func TestTruncate(t *testing.T) {
	got, cut := Truncate("short", 10)
	assert.False(t, cut)
	assert.Equal(t, "short", got)

	got, cut = Truncate("äöüäöü", 3)
	assert.True(t, cut)
	assert.Equal(t, "äöü"+TruncationNote, got)

	got, cut = Truncate("anything", 0)
	assert.False(t, cut)
	assert.Equal(t, "anything", got)
}
