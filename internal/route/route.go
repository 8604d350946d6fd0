// Package route はURLパスを公開・非公開・ルート・その他に分類し、
// 認証状態に応じた遷移先を決定する。
package route

import (
	"path"
	"strings"
)

// 画面パス。
const (
	Root       = "/"
	Login      = "/login"
	Signup     = "/signup"
	Dashboard  = "/dashboard"
	Tasks      = "/tasks"
	CreateTask = "/create-task"
	RunAI      = "/run-ai"
	Logs       = "/logs"
	Profile    = "/profile"
)

// PublicPaths は未認証でも閲覧できるパス。
var PublicPaths = []string{Login, Signup}

// PrivatePaths は認証済みでのみ閲覧できるパス。配下のサブパスも含む。
var PrivatePaths = []string{Dashboard, Tasks, CreateTask, RunAI, Logs, Profile}

// Decision はルーティング判定の結果。
// Allowがfalseの場合、Targetにリダイレクト先が入る。
type Decision struct {
	Allow  bool
	Target string
}

// Redirect はリダイレクト判定かどうかを返す。
func (d Decision) Redirect() bool {
	return !d.Allow
}

func allow() Decision {
	return Decision{Allow: true}
}

func redirect(target string) Decision {
	return Decision{Target: target}
}

// Decide はパスと認証状態から遷移判定を返す純粋関数。
//
// 判定順序:
//  1. ルート: 認証済みなら /dashboard、未認証なら /login へリダイレクト
//  2. 公開パス: 常に許可
//  3. 非公開パス: 認証済みなら許可、未認証なら /login へリダイレクト
//  4. それ以外: 許可（Not Foundページを表示する）
func Decide(p string, authenticated bool) Decision {
	p = Normalize(p)

	if p == Root {
		if authenticated {
			return redirect(Dashboard)
		}
		return redirect(Login)
	}

	if IsPublic(p) {
		return allow()
	}

	if IsPrivate(p) {
		if authenticated {
			return allow()
		}
		return redirect(Login)
	}

	return allow()
}

// Normalize はパスを正規化する。空文字はルートとして扱う。
func Normalize(p string) string {
	if p == "" {
		return Root
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// IsPublic は正規化済みパスが公開パスかどうかを返す。
func IsPublic(p string) bool {
	for _, pub := range PublicPaths {
		if p == pub {
			return true
		}
	}
	return false
}

// IsPrivate は正規化済みパスが非公開パス（またはそのサブパス）かどうかを返す。
func IsPrivate(p string) bool {
	for _, priv := range PrivatePaths {
		if p == priv || strings.HasPrefix(p, priv+"/") {
			return true
		}
	}
	return false
}
