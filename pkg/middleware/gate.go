package middleware

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/stageplan/pkg/observability"
	"github.com/nao1215/stageplan/pkg/route"
	"github.com/nao1215/stageplan/pkg/session"
)

// コンテキストキー。
const (
	contextKeyUserID  = "user_id"
	contextKeySession = "session"
)

// Action は認可ゲートの判定種別を表す。
type Action int

const (
	// PassThrough はリクエストをそのまま後続のハンドラへ渡す。
	PassThrough Action = iota
	// Redirect はLocationへリダイレクトする。
	Redirect
)

// String はメトリクスのラベル用の名前を返す。
func (a Action) String() string {
	if a == Redirect {
		return "redirect"
	}
	return "pass"
}

// Decision は1リクエストにつき1回だけ算出される認可ゲートの判定。
type Decision struct {
	// Action は判定種別。
	Action Action
	// Location はRedirectの場合のリダイレクト先パス。
	Location string
}

// Decide は認証状態とルート分類から判定を下す。全組み合わせで必ず1つの判定を返す。
//
//	認証済み   × ログイン画面 → "/" へリダイレクト
//	未認証     × 保護対象     → "/login" へリダイレクト
//	それ以外                  → 通過
func Decide(authenticated bool, class route.Class) Decision {
	switch {
	case authenticated && class == route.LoginSurface:
		return Decision{Action: Redirect, Location: route.HomePath}
	case !authenticated && class == route.Protected:
		return Decision{Action: Redirect, Location: route.LoginPath}
	default:
		return Decision{Action: PassThrough}
	}
}

// SessionVerifier はリクエストのCookieからセッションを検証する。
// 検証中に発生したCookieのローテーションは戻り値で返す。
type SessionVerifier interface {
	Verify(ctx context.Context, cookies []*http.Cookie) (session.Session, []*http.Cookie)
}

// Skipper がtrueを返したリクエストには認可ゲートを適用しない。
type Skipper func(c *gin.Context) bool

// AuthGate はセッション検証とルート分類を組み合わせた認可ゲートのGinミドルウェアを返す。
// 検証でローテーションされたCookieは、通過・リダイレクトのどちらの場合も
// レスポンスに付与する。認証済みの場合はコンテキストに "user_id" と "session" を設定する。
func AuthGate(verifier SessionVerifier, skip Skipper) gin.HandlerFunc {
	return func(c *gin.Context) {
		if skip != nil && skip(c) {
			c.Next()
			return
		}

		sess, rotated := verifier.Verify(c.Request.Context(), c.Request.Cookies())
		for _, cookie := range rotated {
			http.SetCookie(c.Writer, cookie)
		}

		if sess.Present && !sess.Valid {
			log.Printf("[Gate] セッションを確認できませんでした: path=%s", c.Request.URL.Path)
		}

		class := route.Classify(c.Request.URL.Path)
		decision := Decide(sess.Authenticated(), class)
		observability.RecordGateDecision(class.String(), decision.Action.String())

		if decision.Action == Redirect {
			location := decision.Location
			if q := c.Request.URL.RawQuery; q != "" {
				location += "?" + q
			}
			c.Redirect(http.StatusTemporaryRedirect, location)
			c.Abort()
			return
		}

		if sess.Authenticated() {
			c.Set(contextKeyUserID, sess.PrincipalID)
			c.Set(contextKeySession, sess)
		}
		c.Next()
	}
}

// GetUserID はGinコンテキストから認証済みユーザーのIDを取得する。
// AuthGateミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetSession はGinコンテキストから検証済みセッションを取得する。
func GetSession(c *gin.Context) (session.Session, bool) {
	v, ok := c.Get(contextKeySession)
	if !ok {
		return session.Session{}, false
	}
	sess, ok := v.(session.Session)
	return sess, ok
}
