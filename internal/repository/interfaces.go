// Package repository はセッションスロットの永続化を提供する。
//
// ダッシュボードが保持するセッションはプロセス全体で1つだけなので、
// どの実装も「1スロットを読む・上書きする・消す」の3操作だけを持つ。
// 書き込みと消去は常に1ステップで行い、token・user_id・nameの
// 部分的な状態が読み手に見えないことを保証する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/supporthub/internal/model"
)

// ErrIncompleteSession はトークンまたはユーザーIDが欠けたセッションを保存しようとした場合のエラー。
var ErrIncompleteSession = errors.New("session must carry both token and user id")

// SessionRepository はセッションスロットの永続化インターフェース。
type SessionRepository interface {
	// Load は保存済みのセッションを取得する。未保存の場合はnilを返す。
	Load(ctx context.Context) (*model.Session, error)
	// Save はセッションを1単位として上書き保存する。
	Save(ctx context.Context, session *model.Session) error
	// Clear はセッションを1単位として消去する。未保存の場合も成功する。
	Clear(ctx context.Context) error
}

// validateForSave は保存可能なセッションかを検証する。
func validateForSave(session *model.Session) error {
	if session == nil || !session.IsComplete() {
		return ErrIncompleteSession
	}
	return nil
}
