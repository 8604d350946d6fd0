// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はバックエンドから返るAIの応答やログ詳細をサニタイズし、
// 画面に埋め込んでもXSSにならない形に整える。
// bluemondayの許可リストベースのポリシーで、安全なタグと属性のみを通過させる。
package security

import (
	"html"
	"html/template"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はバックエンド由来のテキストをサニタイズするインターフェース。
type ContentSanitizerService interface {
	// SanitizeHTML はAI応答を表示用の安全なHTMLにする。
	// タグを含まない入力はエスケープし、改行を<br>に変換する。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, h3, h4）のみを通過させ、
	// script, iframe, style, imgタグおよびon*イベント属性を除去する。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	SanitizeHTML(raw string) template.HTML
	// SanitizeText は全てのタグを除去したプレーンテキストを返す。
	// 戻り値はテンプレート側でエスケープされる前提で、実体参照を戻してある。
	SanitizeText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	policy *bluemonday.Policy
	strict *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
func NewContentSanitizer() ContentSanitizerService {
	p := bluemonday.NewPolicy()

	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "h3", "h4",
	)

	// リンクは絶対URLのみ、新しいタブで開く
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &contentSanitizer{
		policy: p,
		strict: bluemonday.StrictPolicy(),
	}
}

// SanitizeHTML はAI応答を表示用の安全なHTMLにする。
func (s *contentSanitizer) SanitizeHTML(raw string) template.HTML {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "<") {
		raw = strings.ReplaceAll(html.EscapeString(raw), "\n", "<br>")
	}
	return template.HTML(s.policy.Sanitize(raw))
}

// SanitizeText は全てのタグを除去したプレーンテキストを返す。
func (s *contentSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(raw)))
}
