package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/stageplan/internal/config"
	"github.com/nao1215/stageplan/internal/project"
	"github.com/nao1215/stageplan/pkg/event"
	"github.com/nao1215/stageplan/pkg/middleware"
	"github.com/nao1215/stageplan/pkg/route"
	"github.com/nao1215/stageplan/pkg/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// myProjectsPath はプロジェクト作成後の遷移先。
const myProjectsPath = "/dashboard/my-projects"

// IdentityClient はwebサーバーが使うIDサービスの操作。
type IdentityClient interface {
	session.IdentityClient
	// SignOut はアクセストークンのセッションを失効させる。
	SignOut(ctx context.Context, accessToken string) error
}

// Server はstageplan webのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// identity はIDサービスクライアント。
	identity IdentityClient
	// verifier はCookieからセッションを検証する。
	verifier middleware.SessionVerifier
	// projects はプロジェクトサービス。
	projects *project.Service
	// publisher はドメインイベントの送出先。
	publisher event.Publisher
	// cookieSecure はセッションCookieにSecure属性を付けるかどうか。
	cookieSecure bool
	// staticDir は静的ファイルの配信元ディレクトリ。
	staticDir string
}

// NewServer は新しいwebサーバーを生成する。publisherがnilの場合はイベントを送出しない。
func NewServer(cfg config.Config, identity IdentityClient, projects *project.Service, publisher event.Publisher) *Server {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	s := &Server{
		router:   router,
		port:     cfg.Port,
		identity: identity,
		verifier: session.NewVerifier(identity,
			session.WithTimeout(cfg.IdentityTimeout),
			session.WithSecureCookies(cfg.CookieSecure),
		),
		projects:     projects,
		publisher:    publisher,
		cookieSecure: cfg.CookieSecure,
		staticDir:    cfg.StaticDir,
	}
	s.setupRoutes()

	return s
}

// Handler はサーバーのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はルーティングを設定する。
// 認可ゲートはルーター全体に適用し、除外対象のパスはSkipperで判定する。
func (s *Server) setupRoutes() {
	s.router.Use(middleware.AuthGate(s.verifier, skipExcluded))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "stageplan-web"})
	})
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if s.staticDir != "" {
		s.router.Static("/static", s.staticDir)
	}

	// ページ
	s.router.GET(route.HomePath, s.handlePage("home"))
	s.router.GET(route.LoginPath, s.handlePage("login"))
	s.router.GET("/profile", s.handlePage("profile"))
	s.router.GET("/settings", s.handlePage("settings"))

	dashboard := s.router.Group("/dashboard")
	{
		dashboard.GET("", s.handlePage("dashboard"))
		dashboard.GET("/my-projects", s.handleListMyProjects())
		dashboard.POST("/projects", s.handleCreateProject())
		dashboard.GET("/projects/:id", s.handleGetProject())
	}

	s.router.POST("/sign-out", s.handleSignOut())
}

// skipExcluded は静的アセットなど認可ゲートの対象外のリクエストを判定する。
func skipExcluded(c *gin.Context) bool {
	return route.IsExcluded(c.Request.URL.Path)
}

// handlePage はページの概要をJSONで返すハンドラを返す。
func (s *Server) handlePage(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		c.JSON(http.StatusOK, gin.H{
			"page":          name,
			"path":          c.Request.URL.Path,
			"authenticated": userID != "",
			"user_id":       userID,
		})
	}
}

// handleCreateProject はプロジェクトを作成するハンドラを返す。
func (s *Server) handleCreateProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザーIDが取得できません"})
			return
		}

		var in project.Input
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストの形式が不正です"})
			return
		}

		p, err := s.projects.Create(c.Request.Context(), userID, in)
		if err != nil {
			var verr *project.ValidationError
			if errors.As(err, &verr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
				return
			}
			log.Printf("[Web] プロジェクト作成に失敗: user=%s, error=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": project.MsgCreateFailed})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"project":     p,
			"redirect_to": myProjectsPath,
		})
	}
}

// handleListMyProjects はログインユーザーのプロジェクト一覧を返すハンドラを返す。
func (s *Server) handleListMyProjects() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		projects, err := s.projects.ListByOwner(c.Request.Context(), userID)
		if err != nil {
			log.Printf("[Web] プロジェクト一覧の取得に失敗: user=%s, error=%v", userID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクト一覧の取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"page":     "my-projects",
			"projects": projects,
			"total":    len(projects),
		})
	}
}

// handleGetProject はプロジェクトを1件返すハンドラを返す。
// 非公開プロジェクトは作成者以外には存在しないものとして扱う。
func (s *Server) handleGetProject() gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := s.projects.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, project.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		}
		if err != nil {
			log.Printf("[Web] プロジェクトの取得に失敗: id=%s, error=%v", c.Param("id"), err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロジェクトの取得に失敗しました"})
			return
		}
		if !p.IsPublic && p.OwnerID != middleware.GetUserID(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": "プロジェクトが見つかりません"})
			return
		}

		c.JSON(http.StatusOK, p)
	}
}

// handleSignOut はサインアウトを処理するハンドラを返す。
// IDサービスへの失効要求とイベント送出は失敗してもサインアウトを続行する。
func (s *Server) handleSignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		accessToken := session.AccessToken(c.Request.Cookies())
		if sess, ok := middleware.GetSession(c); ok {
			accessToken = sess.AccessToken
		}
		if accessToken != "" {
			if err := s.identity.SignOut(ctx, accessToken); err != nil {
				log.Printf("[Web] IDサービスのサインアウトに失敗: %v", err)
			}
		}

		for _, cookie := range session.ClearCookies(s.cookieSecure) {
			http.SetCookie(c.Writer, cookie)
		}

		if userID := middleware.GetUserID(c); userID != "" {
			s.publishSignedOut(ctx, userID)
		}

		c.Redirect(http.StatusSeeOther, signOutRedirect(c.PostForm("redirectTo")))
	}
}

// publishSignedOut はUserSignedOutイベントを送出する。失敗はログに残すのみ。
func (s *Server) publishSignedOut(ctx context.Context, userID string) {
	ev, err := event.New(userID, event.AggregateTypeUser, event.TypeUserSignedOut, 1, event.UserSignedOutData{UserID: userID})
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Printf("[Web] UserSignedOutイベントの送出に失敗: user=%s, error=%v", userID, err)
	}
}

// signOutRedirect はサインアウト後の遷移先を返す。
// 同一サイト内の絶対パス以外はオープンリダイレクトを防ぐためログイン画面にする。
func signOutRedirect(redirectTo string) string {
	if !strings.HasPrefix(redirectTo, "/") ||
		strings.HasPrefix(redirectTo, "//") ||
		strings.Contains(redirectTo, `\`) {
		return route.LoginPath
	}
	return redirectTo
}
