package files_test

import (
	"os"
	"strings"
	"testing"

	"procurement/internal/files"

	"github.com/stretchr/testify/require"
)

func TestDiskStoreSave(t *testing.T) {
	store, err := files.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	att, err := store.Save("spec.pdf", strings.NewReader("contents"))
	require.NoError(t, err)
	require.Equal(t, "spec.pdf", att.FileName)

	data, err := os.ReadFile(att.FilePath)
	require.NoError(t, err)
	require.Equal(t, "contents", string(data))
}

func TestDiskStoreUniqueNames(t *testing.T) {
	store, err := files.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	a, err := store.Save("doc.txt", strings.NewReader("a"))
	require.NoError(t, err)
	b, err := store.Save("doc.txt", strings.NewReader("b"))
	require.NoError(t, err)
	require.NotEqual(t, a.FilePath, b.FilePath)
}
