package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanFileContent(t *testing.T) {
	in := append([]byte{0xEF, 0xBB, 0xBF}, []byte("\u201cIs it?\u201d \u2014 yes\xff")...)
	got, err := CleanFileContent(in, "test")
	require.NoError(t, err)
	assert.Equal(t, "\"Is it?\" -- yes\uFFFD", got)
}

func TestIsLikelyBinary(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "a.txt")
	bin := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(text, []byte("hello\n"), 0o644))
	require.NoError(t, os.WriteFile(bin, []byte{'h', 0, 'i'}, 0o644))

	isBin, err := IsLikelyBinary(text)
	require.NoError(t, err)
	assert.False(t, isBin)

	isBin, err = IsLikelyBinary(bin)
	require.NoError(t, err)
	assert.True(t, isBin)
}

func TestNonEmptyLines(t *testing.T) {
	assert.Equal(t, []string{"one", "two"}, NonEmptyLines("one\r\n\n  two  \n"))
	assert.Nil(t, NonEmptyLines(" \n"))
}
