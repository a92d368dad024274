// Package session はリクエストのCookieからセッションを検証する。
//
// セッションの有効性は必ずIDサービスへの問い合わせで確認する。
// ローカルに保持したトークンのデコード結果は、リフレッシュの要否を
// 判断するためのヒントとしてのみ使用する。
package session

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/nao1215/stageplan/pkg/identity"
	"github.com/nao1215/stageplan/pkg/observability"
)

const (
	// AccessTokenCookie はアクセストークンを保持するCookie名。
	AccessTokenCookie = "sp-access-token"
	// RefreshTokenCookie はリフレッシュトークンを保持するCookie名。
	RefreshTokenCookie = "sp-refresh-token"
)

// refreshTokenMaxAge はリフレッシュトークンCookieの有効秒数（400日）。
const refreshTokenMaxAge = 400 * 24 * 60 * 60

// expiryMargin はアクセストークンの期限切れ前にリフレッシュを始める余裕時間。
const expiryMargin = 10 * time.Second

// Session はリクエストごとに構築されるセッション情報。永続化しない。
type Session struct {
	// Present はセッションCookieがリクエストに含まれていたかどうか。
	Present bool
	// Valid はIDサービスがセッションを有効と確認したかどうか。
	Valid bool
	// PrincipalID は認証済みユーザーのID。無効なら空文字列。
	PrincipalID string
	// AccessToken は検証に使用したアクセストークン（リフレッシュ後は新しい値）。
	AccessToken string
}

// Authenticated はセッションが存在し、かつ有効であるかを返す。
func (s Session) Authenticated() bool {
	return s.Present && s.Valid
}

// IdentityClient はセッション検証に必要なIDサービスの操作。
type IdentityClient interface {
	// GetUser はアクセストークンの持ち主を問い合わせる。
	GetUser(ctx context.Context, accessToken string) (*identity.User, error)
	// Refresh はリフレッシュトークンでトークンを再発行する。
	Refresh(ctx context.Context, refreshToken string) (*identity.Tokens, error)
}

// Verifier はCookieからセッションを検証する。
type Verifier struct {
	// client はIDサービスクライアント。
	client IdentityClient
	// timeout は1回の検証にかける最大時間。
	timeout time.Duration
	// secureCookies はローテーションしたCookieにSecure属性を付けるかどうか。
	secureCookies bool
	// now は現在時刻を返す。テストで差し替える。
	now func() time.Time
}

// Option はVerifierの設定を変更する。
type Option func(*Verifier)

// WithTimeout は1回の検証にかける最大時間を設定する。
func WithTimeout(d time.Duration) Option {
	return func(v *Verifier) { v.timeout = d }
}

// WithSecureCookies はローテーションしたCookieのSecure属性を設定する。
func WithSecureCookies(secure bool) Option {
	return func(v *Verifier) { v.secureCookies = secure }
}

// WithClock は現在時刻の取得関数を差し替える。
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier は新しいVerifierを生成する。
func NewVerifier(client IdentityClient, opts ...Option) *Verifier {
	v := &Verifier{
		client:        client,
		timeout:       identity.DefaultTimeout,
		secureCookies: true,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify はリクエストのCookieからセッションを検証する。
// 戻り値のCookie列は、検証中にIDサービスとのやり取りで発生したローテーション
// （再発行または削除）であり、最終的に返すレスポンスへ必ず付与すること。
// 通信エラーやタイムアウトはエラーとして返さず、Valid=falseとして扱う。
func (v *Verifier) Verify(ctx context.Context, cookies []*http.Cookie) (Session, []*http.Cookie) {
	accessToken := cookieValue(cookies, AccessTokenCookie)
	refreshToken := cookieValue(cookies, RefreshTokenCookie)
	if accessToken == "" && refreshToken == "" {
		observability.RecordVerification(observability.VerificationAbsent)
		return Session{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	sess := Session{Present: true}
	var rotated []*http.Cookie

	if refreshToken != "" && v.needsRefresh(accessToken) {
		tokens, err := v.client.Refresh(ctx, refreshToken)
		switch {
		case errors.Is(err, identity.ErrUnauthorized):
			observability.RecordVerification(observability.VerificationInvalid)
			return sess, v.clearingCookies()
		case err != nil:
			log.Printf("[Session] トークンのリフレッシュに失敗: %v", err)
			observability.RecordVerification(observability.VerificationError)
			return sess, nil
		}
		accessToken = tokens.AccessToken
		rotated = v.tokenCookies(tokens)
	}

	if accessToken == "" {
		observability.RecordVerification(observability.VerificationInvalid)
		return sess, rotated
	}

	user, err := v.client.GetUser(ctx, accessToken)
	switch {
	case errors.Is(err, identity.ErrUnauthorized):
		observability.RecordVerification(observability.VerificationInvalid)
		return sess, rotated
	case err != nil:
		log.Printf("[Session] ユーザーの検証に失敗: %v", err)
		observability.RecordVerification(observability.VerificationError)
		return sess, rotated
	}

	observability.RecordVerification(observability.VerificationValid)
	sess.Valid = true
	sess.PrincipalID = user.ID
	sess.AccessToken = accessToken
	return sess, rotated
}

// needsRefresh はアクセストークンのexpクレームから、事前のリフレッシュが必要かを判断する。
// 署名は検証しない。判断できないトークンはIDサービスの判定に任せる。
func (v *Verifier) needsRefresh(accessToken string) bool {
	if accessToken == "" {
		return true
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !v.now().Add(expiryMargin).Before(claims.ExpiresAt.Time)
}

// tokenCookies は再発行されたトークンをCookieに変換する。
func (v *Verifier) tokenCookies(tokens *identity.Tokens) []*http.Cookie {
	accessMaxAge := tokens.ExpiresIn
	if accessMaxAge <= 0 {
		accessMaxAge = refreshTokenMaxAge
	}
	return []*http.Cookie{
		v.newCookie(AccessTokenCookie, tokens.AccessToken, accessMaxAge),
		v.newCookie(RefreshTokenCookie, tokens.RefreshToken, refreshTokenMaxAge),
	}
}

// clearingCookies はセッションCookieを削除するCookie列を返す。
func (v *Verifier) clearingCookies() []*http.Cookie {
	return ClearCookies(v.secureCookies)
}

// newCookie はセッションCookieの共通属性を持つCookieを生成する。
func (v *Verifier) newCookie(name, value string, maxAge int) *http.Cookie {
	return newCookie(name, value, maxAge, v.secureCookies)
}

// ClearCookies はセッションCookieを削除するためのCookie列を返す。
// サインアウト時にも使用する。
func ClearCookies(secure bool) []*http.Cookie {
	return []*http.Cookie{
		newCookie(AccessTokenCookie, "", -1, secure),
		newCookie(RefreshTokenCookie, "", -1, secure),
	}
}

func newCookie(name, value string, maxAge int, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// cookieValue は指定した名前の最初のCookieの値を返す。
func cookieValue(cookies []*http.Cookie, name string) string {
	for _, c := range cookies {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

// AccessToken はCookie列からアクセストークンを取り出す。
func AccessToken(cookies []*http.Cookie) string {
	return cookieValue(cookies, AccessTokenCookie)
}
