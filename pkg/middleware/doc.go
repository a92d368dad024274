// Package middleware はGinベースのHTTPサーバーで使用する共通ミドルウェアを提供する。
//
// Cookieセッションによる認可ゲート、パニックリカバリ、CORS設定を含む。
// 認可ゲートはページを描画する前に、リクエストを通過させるか、
// ログイン画面またはホームへリダイレクトするかを決める。
package middleware
