// Package route はリクエストパスを認可ゲートの判定に使うルート分類に振り分ける。
//
// 分類は純粋関数であり、I/Oを伴わない。ログイン画面は完全一致、
// 保護対象ルートは前方一致で判定する。
package route

import (
	"path"
	"strings"
)

// Class は認可ゲートから見たルートの分類を表す。
type Class int

const (
	// Public は認証の有無に関係なくアクセスできるルート。
	Public Class = iota
	// LoginSurface はログイン画面。認証済みユーザーはホームへ戻される。
	LoginSurface
	// Protected は認証済みユーザーのみアクセスできるルート。
	Protected
)

// String はメトリクスのラベルやログ出力用の名前を返す。
func (c Class) String() string {
	switch c {
	case LoginSurface:
		return "login"
	case Protected:
		return "protected"
	default:
		return "public"
	}
}

const (
	// LoginPath はログイン画面のパス。
	LoginPath = "/login"
	// HomePath はホーム画面のパス。
	HomePath = "/"
)

// protectedPrefixes は認証必須ルートのパス接頭辞。
var protectedPrefixes = []string{"/dashboard", "/profile", "/settings"}

// Classify はパスをルート分類に振り分ける。
// ログイン画面の判定を先に行い、次に保護対象、それ以外はPublicとなる。
// ログイン画面には前方一致を適用しない（"/login/x" はPublic）。
func Classify(p string) Class {
	if p == LoginPath {
		return LoginSurface
	}
	for _, prefix := range protectedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return Protected
		}
	}
	return Public
}

// excludedPrefixes は認可ゲートを通さない静的アセットのパス接頭辞。
var excludedPrefixes = []string{"/static/", "/assets/"}

// excludedExtensions は認可ゲートを通さない画像ファイルの拡張子。
var excludedExtensions = map[string]struct{}{
	".svg":  {},
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".webp": {},
}

// IsExcluded はパスが静的アセット等のインフラ用パスであり、
// 認可ゲートの対象外とすべきかどうかを返す。
// 画像拡張子による除外は保護対象ルートには適用しない（"/dashboard/x.png" はゲートを通る）。
// ルーティング層で使用し、ゲート自身はこの判定を行わない。
func IsExcluded(p string) bool {
	if p == "/favicon.ico" || p == "/health" || p == "/metrics" {
		return true
	}
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	if Classify(p) == Protected {
		return false
	}
	_, ok := excludedExtensions[strings.ToLower(path.Ext(p))]
	return ok
}
