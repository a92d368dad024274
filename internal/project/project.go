package project

import (
	"encoding/json"
	"errors"
	"time"
)

// 検証エラーのメッセージ。
const (
	MsgNameRequired       = "Project name is required"
	MsgMemberNameRequired = "All members must have a name"
	// MsgCreateFailed は検証以外の理由で作成に失敗したときの利用者向けメッセージ。
	MsgCreateFailed = "Failed to create project"
)

// ErrNotFound はプロジェクトが存在しないことを表す。
var ErrNotFound = errors.New("プロジェクトが見つかりません")

// ValidationError は入力値の検証エラー。Messageは利用者にそのまま表示できる。
type ValidationError struct {
	// Message は利用者向けのメッセージ。
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// MemberInput はプロジェクト作成時のメンバー入力。
type MemberInput struct {
	// Name はメンバー名。必須。
	Name string `json:"name"`
	// Role は担当パート。
	Role string `json:"role"`
	// Icon はアイコン識別子。
	Icon string `json:"icon"`
	// Equipment は使用機材の一覧。
	Equipment []string `json:"equipment"`
}

// Input はプロジェクト作成の入力。
type Input struct {
	// Name はプロジェクト名。必須。
	Name string `json:"name"`
	// Notes はメモ。
	Notes string `json:"notes"`
	// IsPublic は公開プロジェクトかどうか。
	IsPublic bool `json:"is_public"`
	// StagePlanConfig はステージプランの設定。内容は解釈せずに保存する。
	StagePlanConfig json.RawMessage `json:"stage_plan_config"`
	// Members はメンバーの並び。並び順がSortOrderになる。
	Members []MemberInput `json:"members"`
}

// Member は保存されたプロジェクトメンバー。
type Member struct {
	// Name はメンバー名。
	Name string `json:"name"`
	// Role は担当パート。未指定ならnil。
	Role *string `json:"role,omitempty"`
	// Icon はアイコン識別子。未指定ならnil。
	Icon *string `json:"icon,omitempty"`
	// Equipment は使用機材の一覧。
	Equipment []string `json:"equipment"`
	// SortOrder は表示順（0始まり）。
	SortOrder int `json:"sort_order"`
}

// Project は保存されたプロジェクト。
type Project struct {
	// ID はプロジェクトの一意識別子。
	ID string `json:"id"`
	// OwnerID は作成したユーザーのID。
	OwnerID string `json:"owner_id"`
	// Name はプロジェクト名。
	Name string `json:"name"`
	// Notes はメモ。未指定ならnil。
	Notes *string `json:"notes,omitempty"`
	// IsPublic は公開プロジェクトかどうか。
	IsPublic bool `json:"is_public"`
	// StagePlanConfig はステージプランの設定。
	StagePlanConfig json.RawMessage `json:"stage_plan_config"`
	// Members はメンバーの並び。
	Members []Member `json:"members"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
}
