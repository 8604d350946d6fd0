// Package auth はダッシュボードのセッションゲートを提供する。
// ゲートは「使える資格情報があるか」を永続化ストアから導出し、
// ログイン・サインアップによる取得と、ログアウト・強制失効による解放を担う。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hitoshi/supporthub/internal/model"
	"github.com/hitoshi/supporthub/internal/repository"
)

// Authenticator は外部の認証APIのインターフェース。
type Authenticator interface {
	// Login は資格情報を送信し、成功時にセッションを返す。
	Login(ctx context.Context, creds model.LoginCredentials) (*model.Session, error)
	// Signup はアカウントを作成し、成功時にセッションを返す。
	Signup(ctx context.Context, creds model.SignupCredentials) (*model.Session, error)
}

// AttemptRecorder はログイン・サインアップの試行結果を記録する。
type AttemptRecorder interface {
	RecordAuthAttempt(kind, outcome string)
}

// 試行の種類
const (
	AttemptLogin  = "login"
	AttemptSignup = "signup"
)

// 試行の結果
const (
	OutcomeSuccess  = "success"
	OutcomeInvalid  = "invalid"
	OutcomeRejected = "rejected"
	OutcomeNetwork  = "network"
	OutcomeError    = "error"
)

// Reason はセッション状態が変化した理由。
type Reason string

const (
	ReasonRestored Reason = "restored"
	ReasonLogin    Reason = "login"
	ReasonSignup   Reason = "signup"
	ReasonLogout   Reason = "logout"
	ReasonExpired  Reason = "expired"
)

// Event は購読者に通知される状態変化。
type Event struct {
	Session model.Session
	Reason  Reason
}

// Authenticated は変化後の状態が認証済みかどうかを返す。
func (e Event) Authenticated() bool {
	return e.Session.IsAuthenticated()
}

// GateConfig はゲートの設定。
type GateConfig struct {
	PasswordMinLength int
	Recorder          AttemptRecorder
}

// Gate はプロセス全体で1つのセッションスロットを管理する。
//
// 書き込み（Login/Signup/Release/Expire/Restore）はwriteMuで直列化し、
// 確定済みの状態はmuの下で公開する。認証APIへの通信はロックの外で行うため、
// 通信中も読み手は直前に確定した状態を参照する。書き込みは後勝ち。
type Gate struct {
	authenticator Authenticator
	store         repository.SessionRepository
	config        GateConfig

	writeMu sync.Mutex

	mu      sync.RWMutex
	current model.Session

	subMu  sync.Mutex
	subs   map[int]func(Event)
	nextID int
}

// NewGate はGateを生成する。初期状態は未認証で、永続化済みの状態はRestoreで読み込む。
func NewGate(authenticator Authenticator, store repository.SessionRepository, config GateConfig) *Gate {
	if config.PasswordMinLength <= 0 {
		config.PasswordMinLength = DefaultPasswordMinLength
	}
	return &Gate{
		authenticator: authenticator,
		store:         store,
		config:        config,
		subs:          make(map[int]func(Event)),
	}
}

// Restore は起動時に永続化済みのセッションを読み込み、初期状態を決める。
// 読み込みに失敗した場合は未認証のままエラーを返す。
func (g *Gate) Restore(ctx context.Context) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	session, err := g.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}

	var restored model.Session
	if session != nil && session.IsComplete() {
		restored = *session
	}
	g.set(restored)

	slog.Info("session restored",
		slog.Bool("authenticated", restored.IsAuthenticated()),
		slog.String("user_id", restored.UserID),
	)
	g.publish(Event{Session: restored, Reason: ReasonRestored})
	return nil
}

// IsAuthenticated は確定済みのセッションが空でないトークンを持つかを返す。
func (g *Gate) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current.IsAuthenticated()
}

// Current は確定済みのセッションのスナップショットを返す。
func (g *Gate) Current() model.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.current
}

// Token は現在のトークンを返す。未認証の場合は空文字列。
func (g *Gate) Token() string {
	return g.Current().Token
}

// Login は入力を検証し、認証APIでログインしてセッションを確定する。
// 失敗時は永続化済みの状態を変更しない。
func (g *Gate) Login(ctx context.Context, creds model.LoginCredentials) (*model.Session, error) {
	if err := ValidateLogin(creds, g.config.PasswordMinLength); err != nil {
		g.record(AttemptLogin, OutcomeInvalid)
		return nil, err
	}

	session, err := g.authenticator.Login(ctx, creds)
	return g.acquire(ctx, AttemptLogin, ReasonLogin, "Login failed", session, err)
}

// Signup は入力を検証し、認証APIでアカウントを作成してセッションを確定する。
// 失敗時は永続化済みの状態を変更しない。
func (g *Gate) Signup(ctx context.Context, creds model.SignupCredentials) (*model.Session, error) {
	if err := ValidateSignup(creds, g.config.PasswordMinLength); err != nil {
		g.record(AttemptSignup, OutcomeInvalid)
		return nil, err
	}

	session, err := g.authenticator.Signup(ctx, creds)
	return g.acquire(ctx, AttemptSignup, ReasonSignup, "Registration failed", session, err)
}

// acquire は認証APIの結果を受けてセッションを確定する。
func (g *Gate) acquire(ctx context.Context, kind string, reason Reason, fallback string, session *model.Session, err error) (*model.Session, error) {
	if err != nil {
		g.record(kind, outcomeOf(err))
		slog.Warn("session acquisition failed",
			slog.String("kind", kind),
			slog.String("code", model.CodeOf(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	if session == nil || !session.IsComplete() {
		g.record(kind, OutcomeRejected)
		return nil, model.NewAuthRejectedError("invalid auth response", fallback)
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	committed := *session
	if err := g.store.Save(ctx, &committed); err != nil {
		g.record(kind, OutcomeError)
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}
	g.set(committed)
	g.record(kind, OutcomeSuccess)

	slog.Info("session acquired",
		slog.String("kind", kind),
		slog.String("user_id", committed.UserID),
	)
	g.publish(Event{Session: committed, Reason: reason})

	out := committed
	return &out, nil
}

// Release はセッションを1単位として消去する（ログアウト）。冪等。
func (g *Gate) Release(ctx context.Context) error {
	return g.release(ctx, ReasonLogout)
}

// Expire は認証済みの呼び出しが401を受けた際の強制ログアウト。
// 効果はReleaseと同じで、通知される理由だけが異なる。
func (g *Gate) Expire(ctx context.Context) error {
	return g.release(ctx, ReasonExpired)
}

// ExpireToken は現在のトークンがtokenと一致する場合に限りセッションを失効させる。
// 確認後に別のログインが確定していた場合は何もせずfalseを返す。
func (g *Gate) ExpireToken(ctx context.Context, token string) (bool, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	if token == "" || g.Current().Token != token {
		return false, nil
	}
	return true, g.releaseLocked(ctx, ReasonExpired)
}

// release は永続化済みのスロットを消去し、未認証状態を確定する。
// ストアの消去に失敗してもメモリ上は未認証にし、エラーを返す。
func (g *Gate) release(ctx context.Context, reason Reason) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.releaseLocked(ctx, reason)
}

// releaseLocked はwriteMuを保持した状態で呼ぶ。
func (g *Gate) releaseLocked(ctx context.Context, reason Reason) error {
	previous := g.Current()
	clearErr := g.store.Clear(ctx)
	g.set(model.Session{})

	if previous.IsAuthenticated() {
		slog.Info("session released",
			slog.String("reason", string(reason)),
			slog.String("user_id", previous.UserID),
		)
		g.publish(Event{Reason: reason})
	}

	if clearErr != nil {
		return fmt.Errorf("failed to clear session: %w", clearErr)
	}
	return nil
}

// Subscribe は状態変化の通知先を登録し、登録解除用の関数を返す。
// 通知は書き込みと同じゴルーチンで同期的に行われるため、
// 通知先からゲートの書き込み系メソッドを呼んではならない。
func (g *Gate) Subscribe(fn func(Event)) (unsubscribe func()) {
	g.subMu.Lock()
	id := g.nextID
	g.nextID++
	g.subs[id] = fn
	g.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.subMu.Lock()
			delete(g.subs, id)
			g.subMu.Unlock()
		})
	}
}

func (g *Gate) set(session model.Session) {
	g.mu.Lock()
	g.current = session
	g.mu.Unlock()
}

func (g *Gate) publish(ev Event) {
	g.subMu.Lock()
	fns := make([]func(Event), 0, len(g.subs))
	for _, fn := range g.subs {
		fns = append(fns, fn)
	}
	g.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (g *Gate) record(kind, outcome string) {
	if g.config.Recorder != nil {
		g.config.Recorder.RecordAuthAttempt(kind, outcome)
	}
}

func outcomeOf(err error) string {
	switch model.CodeOf(err) {
	case model.ErrCodeValidation:
		return OutcomeInvalid
	case model.ErrCodeAuthRejected:
		return OutcomeRejected
	case model.ErrCodeNetworkFailure:
		return OutcomeNetwork
	default:
		return OutcomeError
	}
}
