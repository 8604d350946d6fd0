package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
)

// FileSessionRepo はローカルのJSONファイルにセッションを保存するリポジトリ。
// ファイルの内容は {"token": ..., "user_id": ..., "name": ...} の1オブジェクト。
// 書き込みは一時ファイルへの出力とrenameで行い、途中状態のファイルは生じない。
type FileSessionRepo struct {
	path string
}

// NewFileSessionRepo はFileSessionRepoを生成する。
func NewFileSessionRepo(path string) (*FileSessionRepo, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("session file path is required")
	}
	return &FileSessionRepo{path: filepath.Clean(path)}, nil
}

// Path は保存先ファイルのパスを返す。
func (r *FileSessionRepo) Path() string {
	return r.path
}

// Load は保存済みのセッションを取得する。ファイルがない場合はnilを返す。
func (r *FileSessionRepo) Load(ctx context.Context) (*model.Session, error) {
	b, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session file: %w", err)
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}

	var session model.Session
	if err := json.Unmarshal(b, &session); err != nil {
		return nil, fmt.Errorf("decode session file: %w", err)
	}
	// 不完全な内容は未保存として扱う
	if !session.IsComplete() {
		return nil, nil
	}
	return &session, nil
}

// Save はセッションを一時ファイルに書き出し、保存先へrenameする。
func (r *FileSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if err := validateForSave(session); err != nil {
		return err
	}

	b, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session file: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("mkdir session dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // rename成功後は存在しないため無視される

	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp session file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp session file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace session file: %w", err)
	}
	return nil
}

// Clear はセッションファイルを削除する。
func (r *FileSessionRepo) Clear(ctx context.Context) error {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*FileSessionRepo)(nil)
