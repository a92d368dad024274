package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nao1215/stageplan/pkg/observability"
)

// ErrUnauthorized はIDサービスがトークンを拒否したことを表す。
// 通信エラーとは区別され、セッションが無効であることを意味する。
var ErrUnauthorized = errors.New("IDサービスがトークンを拒否しました")

// DefaultTimeout はIDサービス呼び出しのデフォルトタイムアウト。
const DefaultTimeout = 5 * time.Second

// User はIDサービスが返す認証済みユーザー。
type User struct {
	// ID はユーザーの一意識別子。
	ID string `json:"id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はIDサービス上のロール。
	Role string `json:"role"`
}

// Tokens はリフレッシュで再発行されたトークンの組。
type Tokens struct {
	// AccessToken は新しいアクセストークン。
	AccessToken string `json:"access_token"`
	// RefreshToken は新しいリフレッシュトークン。
	RefreshToken string `json:"refresh_token"`
	// TokenType はトークン種別（通常 "bearer"）。
	TokenType string `json:"token_type"`
	// ExpiresIn はアクセストークンの有効秒数。
	ExpiresIn int `json:"expires_in"`
	// User はトークンの持ち主。
	User *User `json:"user,omitempty"`
}

// Client はIDサービスへのHTTPクライアント。
// 複数のgoroutineから同時に使用できる。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// baseURL はIDサービスのベースURL。
	baseURL string
	// apiKey はIDサービスの公開APIキー。
	apiKey string
}

// New は新しいIDサービスクライアントを生成する。
// timeoutが0以下の場合はDefaultTimeoutを使用する。
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// GetUser はアクセストークンの持ち主をIDサービスに問い合わせる。
// トークンが拒否された場合はErrUnauthorizedを返す。
func (c *Client) GetUser(ctx context.Context, accessToken string) (*User, error) {
	defer observability.ObserveIdentityRequest("get_user", time.Now())

	var user User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/v1/user", accessToken, nil, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, fmt.Errorf("ユーザーIDが空のレスポンス: %w", ErrUnauthorized)
	}
	return &user, nil
}

// Refresh はリフレッシュトークンを使ってトークンを再発行する。
// リフレッシュトークンが無効な場合はErrUnauthorizedを返す。
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	defer observability.ObserveIdentityRequest("refresh", time.Now())

	body := map[string]string{"refresh_token": refreshToken}
	var tokens Tokens
	if err := c.doJSON(ctx, http.MethodPost, "/auth/v1/token?grant_type=refresh_token", "", body, &tokens); err != nil {
		return nil, err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return nil, errors.New("リフレッシュレスポンスにトークンが含まれていません")
	}
	return &tokens, nil
}

// SignOut はアクセストークンに紐づくセッションをIDサービス側で無効化する。
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	defer observability.ObserveIdentityRequest("sign_out", time.Now())

	return c.doJSON(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)
}

// doJSON はJSON形式のHTTPリクエストを実行する共通処理。
func (c *Client) doJSON(ctx context.Context, method, path, accessToken string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header.Set("apikey", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの送信に失敗: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusBadRequest && method == http.MethodPost && accessToken == "":
		// トークンエンドポイントは無効なリフレッシュトークンに400を返す
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status=%d: %w", resp.StatusCode, ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("HTTPエラー: status=%d, body=%s", resp.StatusCode, string(respBody))
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
		}
	}
	return nil
}
