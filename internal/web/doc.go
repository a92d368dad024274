// Package web はstageplan webのHTTPサーバーを提供する。
//
// すべてのリクエストは認可ゲートを通過してからページやAPIのハンドラに届く。
// 静的アセット、ヘルスチェック、メトリクスはゲートの対象外とする。
// プロジェクト作成とサインアウトはこのパッケージのハンドラが受け付ける。
package web
