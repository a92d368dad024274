// Package event はstageplanのドメインイベントを定義する。
//
// プロジェクト作成やサインアウトなどの状態変更を、不変のイベントとして
// メッセージブローカーへ送出するためのエンベロープとデータ型を含む。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeProject はプロジェクトエンティティを表す。
	AggregateTypeProject AggregateType = "Project"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeProjectCreated はプロジェクトが作成されたことを表す。
	TypeProjectCreated Type = "ProjectCreated"
	// TypeUserSignedOut はユーザーがサインアウトしたことを表す。
	TypeUserSignedOut Type = "UserSignedOut"
)

// Event は不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。メッセージキーにも使う。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// ProjectCreatedData はProjectCreatedイベントのデータ。
type ProjectCreatedData struct {
	// OwnerID はプロジェクトを作成したユーザーのID。
	OwnerID string `json:"owner_id"`
	// Name はプロジェクト名。
	Name string `json:"name"`
	// IsPublic は公開プロジェクトかどうか。
	IsPublic bool `json:"is_public"`
	// MemberCount は作成時のメンバー数。
	MemberCount int `json:"member_count"`
}

// UserSignedOutData はUserSignedOutイベントのデータ。
type UserSignedOutData struct {
	// UserID はサインアウトしたユーザーのID。
	UserID string `json:"user_id"`
}
