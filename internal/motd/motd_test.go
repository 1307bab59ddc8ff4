package motd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMOTDFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "motds.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRotatorServesKnownLines(t *testing.T) {
	path := writeMOTDFile(t, "hello\nworld\n")
	r, err := NewRotator(path, 5)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		require.Contains(t, []string{"hello", "world"}, r.Current())
	}
}

func TestRotatorStableWithinWindow(t *testing.T) {
	path := writeMOTDFile(t, "one\ntwo\nthree\n")
	r, err := NewRotator(path, 3)
	require.NoError(t, err)

	first := r.Current()
	require.Equal(t, first, r.Current())
	require.Equal(t, first, r.Current())
}

func TestRotatorRejectsEmptyFile(t *testing.T) {
	path := writeMOTDFile(t, "\n\n")
	_, err := NewRotator(path, 5)
	require.Error(t, err)
}

func TestRotatorMissingFile(t *testing.T) {
	_, err := NewRotator(filepath.Join(t.TempDir(), "absent.txt"), 5)
	require.Error(t, err)
}
