// Package project はプロジェクト作成の業務ロジックと永続化を提供する。
//
// 作成処理は「検証 → 正規化 → 保存 → イベント送出」の順に進む。
// 検証に失敗した入力はストアに到達しない。
package project
