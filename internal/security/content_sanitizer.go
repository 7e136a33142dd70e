// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力した自由記述（農場名、表示名、家畜のメモ、
// タスクの説明など）からHTMLを取り除く。bluemondayのStrictPolicyで
// すべてのタグを除去し、保存用のプレーンテキストとHTML埋め込み用の
// エスケープ済みテキストを返す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述のサニタイズ機能のインターフェースを定義する。
type TextSanitizer interface {
	// PlainText はタグを除去し、実体参照を戻した前後空白なしのテキストを返す。
	// DBへの保存前に使用する。
	PlainText(raw string) string

	// EscapedText はタグを除去し、HTMLとしてエスケープされたテキストを返す。
	// メール本文などHTMLに埋め込む値に使用する。
	EscapedText(raw string) string
}

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはスレッドセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はタグを除去したプレーンテキストを返す。
func (s *textSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}

// EscapedText はタグを除去し、HTMLエスケープ済みのテキストを返す。
func (s *textSanitizer) EscapedText(raw string) string {
	if raw == "" {
		return ""
	}
	// いったん戻してから再エスケープし、二重エスケープを避ける
	return html.EscapeString(s.PlainText(raw))
}

var _ TextSanitizer = (*textSanitizer)(nil)
