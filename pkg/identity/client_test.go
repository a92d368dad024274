package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// testAPIKey はテスト用の公開APIキー。
const testAPIKey = "test-anon-key"

// testRequest はテストサーバーが受け取ったリクエスト情報を保持する構造体。
type testRequest struct {
	// Method はHTTPメソッド。
	Method string
	// Path はリクエストパス。
	Path string
	// Query はクエリ文字列。
	Query string
	// Body はリクエストボディ。
	Body []byte
	// Headers はリクエストヘッダー。
	Headers http.Header
}

// newRecordingServer は受信したリクエストを記録し、handlerで応答するテストサーバーを生成する。
func newRecordingServer(t *testing.T, received *testRequest, handler http.HandlerFunc) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Method = r.Method
		received.Path = r.URL.Path
		received.Query = r.URL.RawQuery
		received.Body, _ = io.ReadAll(r.Body)
		received.Headers = r.Header.Clone()
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

// TestNew はNew関数でクライアントが正しく生成されることを検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("クライアントが正常に生成されること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:9999/", testAPIKey, 3*time.Second)
		if client.baseURL != "http://localhost:9999" {
			t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:9999")
		}
		if client.apiKey != testAPIKey {
			t.Errorf("apiKey = %q, want %q", client.apiKey, testAPIKey)
		}
		if client.httpClient.Timeout != 3*time.Second {
			t.Errorf("Timeout = %v, want 3s", client.httpClient.Timeout)
		}
	})

	t.Run("タイムアウト未指定の場合はデフォルト値になること", func(t *testing.T) {
		t.Parallel()

		client := New("http://localhost:9999", testAPIKey, 0)
		if client.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", client.httpClient.Timeout, DefaultTimeout)
		}
	})
}

// TestGetUser はGetUser関数を検証する。
func TestGetUser(t *testing.T) {
	t.Parallel()

	t.Run("有効なトークンでユーザーを取得できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(User{ID: "user-1", Email: "user@example.com", Role: "authenticated"})
		})

		client := New(ts.URL, testAPIKey, time.Second)
		user, err := client.GetUser(context.Background(), "access-1")
		if err != nil {
			t.Fatalf("GetUser()でエラーが発生: %v", err)
		}

		if user.ID != "user-1" {
			t.Errorf("ID = %q, want %q", user.ID, "user-1")
		}
		if received.Method != http.MethodGet {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodGet)
		}
		if received.Path != "/auth/v1/user" {
			t.Errorf("Path = %q, want %q", received.Path, "/auth/v1/user")
		}
		if got := received.Headers.Get("apikey"); got != testAPIKey {
			t.Errorf("apikey = %q, want %q", got, testAPIKey)
		}
		if got := received.Headers.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer access-1")
		}
	})

	t.Run("401の場合はErrUnauthorizedが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"msg":"invalid JWT"}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		_, err := client.GetUser(context.Background(), "forged")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("403の場合もErrUnauthorizedが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		client := New(ts.URL, testAPIKey, time.Second)
		_, err := client.GetUser(context.Background(), "forged")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("500の場合はErrUnauthorized以外のエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error":"down"}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		_, err := client.GetUser(context.Background(), "access-1")
		if err == nil {
			t.Fatal("GetUser()がエラーを返すべきだが、nilが返った")
		}
		if errors.Is(err, ErrUnauthorized) {
			t.Error("500はErrUnauthorizedと区別されるべき")
		}
	})

	t.Run("IDが空のレスポンスはErrUnauthorizedになること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		_, err := client.GetUser(context.Background(), "access-1")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("不正なJSONレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{invalid json}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		if _, err := client.GetUser(context.Background(), "access-1"); err == nil {
			t.Fatal("GetUser()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("タイムアウトした場合にエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.Write([]byte(`{"id":"late"}`))
		})

		client := New(ts.URL, testAPIKey, 20*time.Millisecond)
		if _, err := client.GetUser(context.Background(), "access-1"); err == nil {
			t.Fatal("GetUser()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("接続できないサーバーに対してエラーが返ること", func(t *testing.T) {
		t.Parallel()

		client := New("http://127.0.0.1:1", testAPIKey, time.Second)
		if _, err := client.GetUser(context.Background(), "access-1"); err == nil {
			t.Fatal("GetUser()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestRefresh はRefresh関数を検証する。
func TestRefresh(t *testing.T) {
	t.Parallel()

	t.Run("リフレッシュトークンで新しいトークンを取得できること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(Tokens{
				AccessToken:  "access-2",
				RefreshToken: "refresh-2",
				TokenType:    "bearer",
				ExpiresIn:    3600,
			})
		})

		client := New(ts.URL, testAPIKey, time.Second)
		tokens, err := client.Refresh(context.Background(), "refresh-1")
		if err != nil {
			t.Fatalf("Refresh()でエラーが発生: %v", err)
		}

		if tokens.AccessToken != "access-2" || tokens.RefreshToken != "refresh-2" {
			t.Errorf("tokens = %+v, want access-2/refresh-2", tokens)
		}
		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/auth/v1/token" {
			t.Errorf("Path = %q, want %q", received.Path, "/auth/v1/token")
		}
		if received.Query != "grant_type=refresh_token" {
			t.Errorf("Query = %q, want %q", received.Query, "grant_type=refresh_token")
		}
		if got := received.Headers.Get("Authorization"); got != "" {
			t.Errorf("Authorization = %q, want empty", got)
		}

		var sent map[string]string
		if err := json.Unmarshal(received.Body, &sent); err != nil {
			t.Fatalf("リクエストボディのパースに失敗: %v", err)
		}
		if sent["refresh_token"] != "refresh-1" {
			t.Errorf("refresh_token = %q, want %q", sent["refresh_token"], "refresh-1")
		}
	})

	t.Run("無効なリフレッシュトークンでErrUnauthorizedが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant"}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		_, err := client.Refresh(context.Background(), "revoked")
		if !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("err = %v, want ErrUnauthorized", err)
		}
	})

	t.Run("トークンが欠けたレスポンスでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"access_token":"only-access"}`))
		})

		client := New(ts.URL, testAPIKey, time.Second)
		if _, err := client.Refresh(context.Background(), "refresh-1"); err == nil {
			t.Fatal("Refresh()がエラーを返すべきだが、nilが返った")
		}
	})
}

// TestSignOut はSignOut関数を検証する。
func TestSignOut(t *testing.T) {
	t.Parallel()

	t.Run("アクセストークン付きでログアウトを要求すること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		client := New(ts.URL, testAPIKey, time.Second)
		if err := client.SignOut(context.Background(), "access-1"); err != nil {
			t.Fatalf("SignOut()でエラーが発生: %v", err)
		}

		if received.Method != http.MethodPost {
			t.Errorf("Method = %q, want %q", received.Method, http.MethodPost)
		}
		if received.Path != "/auth/v1/logout" {
			t.Errorf("Path = %q, want %q", received.Path, "/auth/v1/logout")
		}
		if got := received.Headers.Get("Authorization"); got != "Bearer access-1" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer access-1")
		}
	})

	t.Run("キャンセルされたコンテキストでエラーが返ること", func(t *testing.T) {
		t.Parallel()

		var received testRequest
		ts := newRecordingServer(t, &received, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})

		client := New(ts.URL, testAPIKey, time.Second)
		ctx, cancel := context.WithCancel(context.Background())
		cancel() // 即座にキャンセル

		if err := client.SignOut(ctx, "access-1"); err == nil {
			t.Fatal("SignOut()がエラーを返すべきだが、nilが返った")
		}
	})
}
