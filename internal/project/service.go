package project

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/stageplan/pkg/event"
	"github.com/nao1215/stageplan/pkg/observability"
)

// Store はプロジェクトの永続化を行う。
type Store interface {
	// CreateProject はプロジェクトとメンバーを1トランザクションで保存する。
	CreateProject(ctx context.Context, p *Project) error
	// GetProject はIDでプロジェクトを取得する。存在しない場合はErrNotFoundを返す。
	GetProject(ctx context.Context, id string) (*Project, error)
	// ListProjectsByOwner は作成者のプロジェクトを新しい順に返す。
	ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error)
}

// Service はプロジェクトの作成と参照を行う。
type Service struct {
	// store はプロジェクトストア。
	store Store
	// publisher はドメインイベントの送出先。
	publisher event.Publisher
	// now は現在時刻を返す。
	now func() time.Time
	// newID はプロジェクトIDを採番する。
	newID func() string
}

// NewService は新しいServiceを生成する。publisherがnilの場合はイベントを送出しない。
func NewService(store Store, publisher event.Publisher) *Service {
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.New().String() },
	}
}

// Validate は作成入力を検証する。違反があれば*ValidationErrorを返す。
func Validate(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Message: MsgNameRequired}
	}
	for _, m := range in.Members {
		if strings.TrimSpace(m.Name) == "" {
			return &ValidationError{Message: MsgMemberNameRequired}
		}
	}
	return nil
}

// Create は入力を検証・正規化してプロジェクトを保存する。
// 検証エラーの場合はストアを呼ばずに*ValidationErrorを返す。
// イベント送出の失敗はログに残すのみで、作成自体は成功とする。
func (s *Service) Create(ctx context.Context, ownerID string, in Input) (*Project, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	p := normalize(in)
	p.ID = s.newID()
	p.OwnerID = ownerID
	p.CreatedAt = s.now()

	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("プロジェクトの保存に失敗: %w", err)
	}
	observability.RecordProjectCreated()

	ev, err := event.New(p.ID, event.AggregateTypeProject, event.TypeProjectCreated, 1, event.ProjectCreatedData{
		OwnerID:     ownerID,
		Name:        p.Name,
		IsPublic:    p.IsPublic,
		MemberCount: len(p.Members),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		log.Printf("[Project] ProjectCreatedイベントの送出に失敗: project=%s, error=%v", p.ID, err)
	}
	return p, nil
}

// Get はIDでプロジェクトを取得する。
func (s *Service) Get(ctx context.Context, id string) (*Project, error) {
	return s.store.GetProject(ctx, id)
}

// ListByOwner は作成者のプロジェクト一覧を返す。
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	return s.store.ListProjectsByOwner(ctx, ownerID)
}

// normalize は前後の空白を除き、空の任意項目をnilにする。
func normalize(in Input) *Project {
	p := &Project{
		Name:            strings.TrimSpace(in.Name),
		Notes:           optional(in.Notes),
		IsPublic:        in.IsPublic,
		StagePlanConfig: in.StagePlanConfig,
		Members:         make([]Member, 0, len(in.Members)),
	}
	if len(p.StagePlanConfig) == 0 || string(p.StagePlanConfig) == "null" {
		p.StagePlanConfig = json.RawMessage(`{}`)
	}
	for i, m := range in.Members {
		equipment := m.Equipment
		if equipment == nil {
			equipment = []string{}
		}
		p.Members = append(p.Members, Member{
			Name:      strings.TrimSpace(m.Name),
			Role:      optional(m.Role),
			Icon:      optional(m.Icon),
			Equipment: equipment,
			SortOrder: i,
		})
	}
	return p
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
