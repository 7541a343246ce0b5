// Package storage はアップロードされた書類の保存先を提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName はディレクトリを含む名前や空の名前が渡された場合に返されます。
var ErrInvalidName = errors.New("storage: invalid object name")

// ErrNotFound は指定した名前のファイルがない場合に返されます。
var ErrNotFound = errors.New("storage: object not found")

// Local はローカルファイルシステムに保存するストレージです。
// 名前はルート直下のファイル名のみを受け付けます。
type Local struct {
	root string
}

// NewLocal はルートディレクトリを作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage: root directory is required")
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("storage: failed to create root: %w", err)
	}
	return &Local{root: root}, nil
}

// Save は r の内容を name として保存し、書き込んだバイト数を返します。
// 一時ファイルに書き込んでからリネームするため、途中で失敗しても中途半端なファイルは残りません。
func (l *Local) Save(ctx context.Context, name string, r io.Reader) (int64, error) {
	path, err := l.Path(name)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(l.root, ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("storage: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil {
		return 0, fmt.Errorf("storage: failed to write %s: %w", name, copyErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("storage: failed to close %s: %w", name, closeErr)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, fmt.Errorf("storage: failed to move %s: %w", name, err)
	}
	return n, nil
}

// Open は保存済みファイルを開きます。
func (l *Local) Open(ctx context.Context, name string) (*os.File, error) {
	path, err := l.Path(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

// Delete はファイルを削除します。存在しない場合は何もしません。
func (l *Local) Delete(ctx context.Context, name string) error {
	path, err := l.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: failed to delete %s: %w", name, err)
	}
	return nil
}

// Path は name の絶対パスを返します。PDF 検査など、パスを必要とする処理で使います。
func (l *Local) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(l.root, name), nil
}
