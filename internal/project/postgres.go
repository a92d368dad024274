package project

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchema はPostgreSQL用のスキーマ定義。何度実行しても結果は変わらない。
const postgresSchema = `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    notes TEXT,
    is_public BOOLEAN NOT NULL DEFAULT FALSE,
    stage_plan_config JSONB NOT NULL DEFAULT '{}'::jsonb,
    created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS project_members (
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    sort_order INTEGER NOT NULL,
    name TEXT NOT NULL,
    role TEXT,
    icon TEXT,
    equipment TEXT[] NOT NULL DEFAULT '{}',
    PRIMARY KEY (project_id, sort_order)
);

CREATE INDEX IF NOT EXISTS idx_projects_owner_id ON projects(owner_id, created_at);
`

// PostgresStore はPostgreSQLをバックエンドとするStore。
type PostgresStore struct {
	// pool はコネクションプール。
	pool *pgxpool.Pool
}

// OpenPostgres はコネクションプールを作成し、スキーマを用意したStoreを返す。
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	store := NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore は既存のコネクションプールからStoreを生成する。
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema はテーブルとインデックスがなければ作成する。
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return nil
}

// Close はコネクションプールを閉じる。
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// CreateProject はプロジェクトとメンバーを1トランザクションで保存する。
func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`INSERT INTO projects (id, owner_id, name, notes, is_public, stage_plan_config, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		p.ID, p.OwnerID, p.Name, p.Notes, p.IsPublic, string(p.StagePlanConfig), p.CreatedAt,
	); err != nil {
		return fmt.Errorf("プロジェクトの挿入に失敗: %w", err)
	}

	batch := &pgx.Batch{}
	for _, m := range p.Members {
		batch.Queue(
			`INSERT INTO project_members (project_id, sort_order, name, role, icon, equipment)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			p.ID, m.SortOrder, m.Name, m.Role, m.Icon, m.Equipment,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("メンバーの挿入に失敗: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetProject はIDでプロジェクトを取得する。
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, owner_id, name, notes, is_public, stage_plan_config::text, created_at
		 FROM projects WHERE id = $1`, id)
	p, err := scanPgProject(row)
	if errors.Is(err, pgx.ErrNoRows) {
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
func (s *PostgresStore) ListProjectsByOwner(ctx context.Context, ownerID string) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, name, notes, is_public, stage_plan_config::text, created_at
		 FROM projects WHERE owner_id = $1 ORDER BY created_at DESC, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("プロジェクト一覧の取得に失敗: %w", err)
	}
	defer rows.Close()

	projects := []Project{}
	for rows.Next() {
		p, err := scanPgProject(rows)
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

func (s *PostgresStore) members(ctx context.Context, projectID string) ([]Member, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT name, role, icon, equipment, sort_order
		 FROM project_members WHERE project_id = $1 ORDER BY sort_order`, projectID)
	if err != nil {
		return nil, fmt.Errorf("メンバーの取得に失敗: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Name, &m.Role, &m.Icon, &m.Equipment, &m.SortOrder); err != nil {
			return nil, fmt.Errorf("メンバーの読み取りに失敗: %w", err)
		}
		if m.Equipment == nil {
			m.Equipment = []string{}
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func scanPgProject(row pgx.Row) (*Project, error) {
	var (
		p      Project
		config string
	)
	if err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Notes, &p.IsPublic, &config, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.StagePlanConfig = []byte(config)
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}
