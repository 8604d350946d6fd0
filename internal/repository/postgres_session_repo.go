package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/supporthub/internal/model"
)

// defaultSlot はsession_slotテーブルでこのダッシュボードが使う行のキー。
const defaultSlot = "default"

// PostgresSessionRepo はPostgreSQLを使用したセッションリポジトリ。
// テーブルはdatabase.RunMigrationsで作成する。
type PostgresSessionRepo struct {
	db   *sql.DB
	slot string
}

// NewPostgresSessionRepo はPostgresSessionRepoを生成する。
func NewPostgresSessionRepo(db *sql.DB) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db, slot: defaultSlot}
}

// Load は保存済みのセッションを取得する。未保存の場合はnilを返す。
func (r *PostgresSessionRepo) Load(ctx context.Context) (*model.Session, error) {
	session := &model.Session{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, name
		 FROM session_slot
		 WHERE slot = $1`,
		r.slot,
	).Scan(&session.Token, &session.UserID, &session.DisplayName)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	return session, nil
}

// Save はセッションを1文のUPSERTで上書き保存する。
func (r *PostgresSessionRepo) Save(ctx context.Context, session *model.Session) error {
	if err := validateForSave(session); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO session_slot (slot, token, user_id, name, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (slot) DO UPDATE
		 SET token = EXCLUDED.token,
		     user_id = EXCLUDED.user_id,
		     name = EXCLUDED.name,
		     updated_at = EXCLUDED.updated_at`,
		r.slot, session.Token, session.UserID, session.DisplayName,
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// Clear はセッション行を削除する。
func (r *PostgresSessionRepo) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM session_slot WHERE slot = $1`,
		r.slot,
	)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SessionRepository = (*PostgresSessionRepo)(nil)
