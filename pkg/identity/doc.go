// Package identity は外部IDサービス（GoTrue互換API）のクライアントを提供する。
//
// セッションの真正性はこのクライアントによるネットワーク往復でのみ確認する。
// アクセストークンのリフレッシュとサインアウトもここから行う。
package identity
