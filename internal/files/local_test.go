package files

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/atinyakov/GophLock/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Local, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	require.NoError(t, os.MkdirAll(root, 0o700))
	src := filepath.Join(root, "report.txt")
	require.NoError(t, os.WriteFile(src, []byte("quarterly"), 0o600))
	return &Local{
		Root:      root,
		ShareDir:  filepath.Join(base, "share"),
		ExportDir: filepath.Join(base, "export"),
	}, src
}

func TestShareAndSave(t *testing.T) {
	l, src := setup(t)
	ctx := context.Background()
	ref := models.FileRef{URI: "file://" + src, Name: "report.txt"}

	require.NoError(t, l.Share(ctx, ref))
	data, err := os.ReadFile(filepath.Join(l.ShareDir, "report.txt"))
	require.NoError(t, err)
	assert.Equal(t, "quarterly", string(data))

	require.NoError(t, l.Save(ctx, ref))
	require.NoError(t, l.Save(ctx, ref))
	entries, err := os.ReadDir(l.ExportDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "a second save must not overwrite the first")

	_, err = os.Stat(src)
	assert.NoError(t, err, "source stays in place")
}

func TestDelete(t *testing.T) {
	l, src := setup(t)
	require.NoError(t, l.Delete(context.Background(), models.FileRef{URI: "report.txt", Name: "report.txt"}))
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	assert.Error(t, l.Delete(context.Background(), models.FileRef{URI: "report.txt"}))
}

func TestOutsideRoot(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	for _, uri := range []string{"../escape.txt", "/etc/passwd", "file:///etc/hosts", ".", l.Root, "file://" + l.Root} {
		err := l.Delete(ctx, models.FileRef{URI: uri})
		assert.ErrorIs(t, err, ErrOutsideRoot, uri)
	}
}

func TestOutsideRoot_RootSurvives(t *testing.T) {
	l, src := setup(t)
	require.NoError(t, os.Remove(src))

	err := l.Delete(context.Background(), models.FileRef{URI: "file://" + l.Root})
	assert.ErrorIs(t, err, ErrOutsideRoot)
	_, err = os.Stat(l.Root)
	assert.NoError(t, err, "an empty root must not be removed")
}

func TestOutsideRoot_Symlink(t *testing.T) {
	l, _ := setup(t)
	ctx := context.Background()
	outside := filepath.Join(filepath.Dir(l.Root), "private.txt")
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o600))

	link := filepath.Join(l.Root, "shortcut.txt")
	require.NoError(t, os.Symlink(outside, link))
	assert.ErrorIs(t, l.Share(ctx, models.FileRef{URI: link}), ErrOutsideRoot)
	assert.ErrorIs(t, l.Delete(ctx, models.FileRef{URI: "shortcut.txt"}), ErrOutsideRoot)
	_, err := os.Stat(outside)
	assert.NoError(t, err)

	escape := filepath.Join(l.Root, "up")
	require.NoError(t, os.Symlink(filepath.Dir(l.Root), escape))
	assert.ErrorIs(t, l.Delete(ctx, models.FileRef{URI: "up/private.txt"}), ErrOutsideRoot)
	_, err = os.Stat(outside)
	assert.NoError(t, err)
}

func TestMissingDestination(t *testing.T) {
	l, src := setup(t)
	l.ShareDir = ""
	assert.Error(t, l.Share(context.Background(), models.FileRef{URI: src}))
}
