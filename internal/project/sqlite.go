package project

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nao1215/stageplan/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// timeLayout はcreated_atの保存形式。文字列比較で時刻順に並ぶよう桁数を固定する。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore はSQLiteをバックエンドとするStore。
type SQLiteStore struct {
	// db はSQLiteデータベース接続。
	db *sql.DB
}

// foreignKeysPragma はすべての接続で外部キー制約を有効にするDSNパラメータ。
const foreignKeysPragma = "_pragma=foreign_keys(1)"

// OpenSQLite はSQLiteデータベースを開き、マイグレーションを適用したStoreを返す。
// DSNに外部キー制約の指定がなければ追加する。
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", ForeignKeysDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// ForeignKeysDSN はDSNに外部キー制約を有効にするpragmaを付加する。
// PRAGMAは接続単位の設定のため、プール内の全接続に効くようDSNで指定する。
func ForeignKeysDSN(dsn string) string {
	if strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&" + foreignKeysPragma
	}
	return dsn + "?" + foreignKeysPragma
}

// NewSQLiteStore は開いているSQLite接続にマイグレーションを適用してStoreを返す。
// dbはForeignKeysDSNを通したDSNで開いておくこと。
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if _, err := migration.Run(ctx, db, migrationsFS, "migrations"); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateProject はプロジェクトとメンバーを1トランザクションで保存する。
func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, owner_id, name, notes, is_public, stage_plan_config, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.Notes, p.IsPublic, string(p.StagePlanConfig), p.CreatedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("プロジェクトの挿入に失敗: %w", err)
	}

	for _, m := range p.Members {
		equipment, err := json.Marshal(m.Equipment)
		if err != nil {
			return fmt.Errorf("機材一覧のシリアライズに失敗: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO project_members (project_id, sort_order, name, role, icon, equipment)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, m.SortOrder, m.Name, m.Role, m.Icon, string(equipment),
		); err != nil {
			return fmt.Errorf("メンバーの挿入に失敗: %w", err)
		}
	}

	return tx.Commit()
}

// GetProject はIDでプロジェクトを取得する。
func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, notes, is_public, stage_plan_config, created_at
		 FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("プロジェクトの取得に失敗: %w", err)
	}
	if p.Members, err = s.members(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProjectsByOwner は作成者のプロジェクトを新しい順に返す。
func (s *SQLiteStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, notes, is_public, stage_plan_config, created_at
		 FROM projects WHERE owner_id = ? ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	projects := []Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("プロジェクトの読み取りに失敗: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range projects {
		if projects[i].Members, err = s.members(ctx, projects[i].ID); err != nil {
			return nil, err
		}
	}
	return projects, nil
}

// members はプロジェクトのメンバーを表示順に返す。
func (s *SQLiteStore) members(ctx context.Context, projectID string) ([]Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, role, icon, equipment, sort_order
		 FROM project_members WHERE project_id = ? ORDER BY sort_order`, projectID)
	if err != nil {
		return nil, fmt.Errorf("メンバーの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	members := []Member{}
	for rows.Next() {
		var (
			m         Member
			role      sql.NullString
			icon      sql.NullString
			equipment string
		)
		if err := rows.Scan(&m.Name, &role, &icon, &equipment, &m.SortOrder); err != nil {
			return nil, fmt.Errorf("メンバーの読み取りに失敗: %w", err)
		}
		m.Role = nullableString(role)
		m.Icon = nullableString(icon)
		if err := json.Unmarshal([]byte(equipment), &m.Equipment); err != nil {
			return nil, fmt.Errorf("機材一覧のデシリアライズに失敗: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// rowScanner は*sql.Rowと*sql.Rowsに共通するScan。
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	var (
		p         Project
		notes     sql.NullString
		config    string
		createdAt string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &notes, &p.IsPublic, &config, &createdAt); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
	}
	p.Notes = nullableString(notes)
	p.StagePlanConfig = json.RawMessage(config)
	p.CreatedAt = t
	return &p, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
