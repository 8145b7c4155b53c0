// Package files is a reference host for gated file actions on the local
// filesystem.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/GophLock/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrOutsideRoot is returned for files outside the managed root.
var ErrOutsideRoot = errors.New("file outside managed root")

// Local shares by copying into ShareDir, saves by copying into ExportDir and
// deletes in place. Every file must live under Root.
type Local struct {
	Root      string
	ShareDir  string
	ExportDir string
	Log       *zap.Logger
}

// Share copies f into ShareDir, renaming on collision.
func (l *Local) Share(ctx context.Context, f models.FileRef) error {
	dst, err := l.copyInto(ctx, f, l.ShareDir)
	if err != nil {
		return fmt.Errorf("share %s: %w", f.Name, err)
	}
	l.logger().Info("file shared", zap.String("path", dst))
	return nil
}

// Save copies f into ExportDir, renaming on collision.
func (l *Local) Save(ctx context.Context, f models.FileRef) error {
	dst, err := l.copyInto(ctx, f, l.ExportDir)
	if err != nil {
		return fmt.Errorf("save %s: %w", f.Name, err)
	}
	l.logger().Info("file saved", zap.String("path", dst))
	return nil
}

// Delete removes f from Root.
func (l *Local) Delete(ctx context.Context, f models.FileRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src, err := l.resolve(f)
	if err != nil {
		return fmt.Errorf("delete %s: %w", f.Name, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("delete %s: %w", f.Name, err)
	}
	l.logger().Info("file deleted", zap.String("path", src))
	return nil
}

// resolve maps a file URI to an existing path strictly below Root.
func (l *Local) resolve(f models.FileRef) (string, error) {
	p := f.URI
	if u, err := url.Parse(f.URI); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	if p == "" {
		return "", fmt.Errorf("empty file uri")
	}
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)
	if !below(root, p) {
		return "", ErrOutsideRoot
	}

	// links are followed before the final check
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", err
	}
	if p, err = filepath.EvalSymlinks(p); err != nil {
		return "", err
	}
	if !below(root, p) {
		return "", ErrOutsideRoot
	}
	return p, nil
}

func below(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (l *Local) copyInto(ctx context.Context, f models.FileRef, dir string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir == "" {
		return "", fmt.Errorf("destination directory not configured")
	}
	src, err := l.resolve(f)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	name := f.Name
	if name == "" {
		name = filepath.Base(src)
	}
	name = filepath.Base(name)
	dst := filepath.Join(dir, name)
	if _, err := os.Stat(dst); err == nil {
		ext := filepath.Ext(name)
		dst = filepath.Join(dir, strings.TrimSuffix(name, ext)+"-"+uuid.NewString()[:8]+ext)
	}

	in, err := os.Open(src)
	if err != nil {
		return "", err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return "", err
	}
	return dst, out.Close()
}

func (l *Local) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
