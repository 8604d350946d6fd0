package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hitoshi/supporthub/internal/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS session_slot (
    slot TEXT PRIMARY KEY,
    token TEXT NOT NULL,
    user_id TEXT NOT NULL,
    name TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
);
`

// SQLiteSessionRepo はローカルのSQLiteファイルにセッションを保存するリポジトリ。
type SQLiteSessionRepo struct {
	db   *sql.DB
	slot string
}

// OpenSQLiteSessionRepo はSQLiteファイルを開き、スキーマを作成してリポジトリを返す。
func OpenSQLiteSessionRepo(path string) (*SQLiteSessionRepo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite session path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	repo, err := NewSQLiteSessionRepo(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// NewSQLiteSessionRepo は開済みのDBからリポジトリを生成し、スキーマを作成する。
func NewSQLiteSessionRepo(db *sql.DB) (*SQLiteSessionRepo, error) {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("ensure session_slot table: %w", err)
	}
	return &SQLiteSessionRepo{db: db, slot: defaultSlot}, nil
}

// Close はDB接続を閉じる。
func (r *SQLiteSessionRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// PingContext はDB接続の疎通を確認する。
func (r *SQLiteSessionRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Load は保存済みのセッションを取得する。未保存の場合はnilを返す。
func (r *SQLiteSessionRepo) Load(ctx context.Context) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, name FROM session_slot WHERE slot = ?`,
		r.slot,
	).Scan(&session.Token, &session.UserID, &session.DisplayName)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

// Save はセッションを1文のUPSERTで上書き保存する。
func (r *SQLiteSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if err := validateForSave(session); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_slot (slot, token, user_id, name, updated_at)
		 VALUES (?, ?, ?, ?, CAST(strftime('%s', 'now') AS INTEGER))
		 ON CONFLICT(slot) DO UPDATE SET
		     token = excluded.token,
		     user_id = excluded.user_id,
		     name = excluded.name,
		     updated_at = excluded.updated_at`,
		r.slot, session.Token, session.UserID, session.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear はセッション行を削除する。
func (r *SQLiteSessionRepo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM session_slot WHERE slot = ?`, r.slot); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*SQLiteSessionRepo)(nil)
