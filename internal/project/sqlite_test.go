package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

// newTestSQLiteStore はインメモリのSQLiteStoreを生成する。
func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite", ForeignKeysDSN(":memory:"))
	require.NoError(t, err)
	// インメモリDBは接続ごとに別物になるため1本に固定する
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(context.Background(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	t.Run("保存したプロジェクトをメンバー込みで取得できること", func(t *testing.T) {
		t.Parallel()

		store := newTestSQLiteStore(t)
		ctx := context.Background()
		created := time.Date(2026, 4, 1, 12, 0, 0, 123, time.UTC)
		p := &Project{
			ID:              "p-1",
			OwnerID:         "user-1",
			Name:            "Summer Tour",
			Notes:           strPtr("outdoor"),
			IsPublic:        true,
			StagePlanConfig: json.RawMessage(`{"stage":{"width":8}}`),
			Members: []Member{
				{Name: "Aki", Role: strPtr("Vocal"), Equipment: []string{"SM58", "In-ear"}, SortOrder: 0},
				{Name: "Ren", Equipment: []string{}, SortOrder: 1},
			},
			CreatedAt: created,
		}
		require.NoError(t, store.CreateProject(ctx, p))

		got, err := store.GetProject(ctx, "p-1")
		require.NoError(t, err)
		assert.Equal(t, "Summer Tour", got.Name)
		require.NotNil(t, got.Notes)
		assert.Equal(t, "outdoor", *got.Notes)
		assert.True(t, got.IsPublic)
		assert.JSONEq(t, `{"stage":{"width":8}}`, string(got.StagePlanConfig))
		assert.True(t, created.Equal(got.CreatedAt))
		require.Len(t, got.Members, 2)
		assert.Equal(t, []string{"SM58", "In-ear"}, got.Members[0].Equipment)
		assert.Equal(t, "Vocal", *got.Members[0].Role)
		assert.Nil(t, got.Members[1].Role)
		assert.Nil(t, got.Members[1].Icon)
		assert.Equal(t, []string{}, got.Members[1].Equipment)
	})

	t.Run("存在しないIDはErrNotFoundになること", func(t *testing.T) {
		t.Parallel()

		store := newTestSQLiteStore(t)
		_, err := store.GetProject(context.Background(), "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("作成者ごとに新しい順で一覧できること", func(t *testing.T) {
		t.Parallel()

		store := newTestSQLiteStore(t)
		ctx := context.Background()
		base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		for i, id := range []string{"old", "new"} {
			require.NoError(t, store.CreateProject(ctx, &Project{
				ID: id, OwnerID: "user-1", Name: id, StagePlanConfig: json.RawMessage(`{}`),
				CreatedAt: base.Add(time.Duration(i) * time.Hour),
			}))
		}
		require.NoError(t, store.CreateProject(ctx, &Project{
			ID: "other", OwnerID: "user-2", Name: "other", StagePlanConfig: json.RawMessage(`{}`), CreatedAt: base,
		}))

		list, err := store.ListProjectsByOwner(ctx, "user-1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "new", list[0].ID)
		assert.Equal(t, "old", list[1].ID)
		assert.Empty(t, list[0].Members)
	})

	t.Run("重複IDの保存は失敗しメンバーも残らないこと", func(t *testing.T) {
		t.Parallel()

		store := newTestSQLiteStore(t)
		ctx := context.Background()
		p := &Project{ID: "dup", OwnerID: "user-1", Name: "a", StagePlanConfig: json.RawMessage(`{}`), CreatedAt: time.Now().UTC()}
		require.NoError(t, store.CreateProject(ctx, p))

		again := *p
		again.Members = []Member{{Name: "x", Equipment: []string{}, SortOrder: 5}}
		require.Error(t, store.CreateProject(ctx, &again))

		got, err := store.GetProject(ctx, "dup")
		require.NoError(t, err)
		assert.Empty(t, got.Members)
	})

	t.Run("マイグレーションは再実行しても失敗しないこと", func(t *testing.T) {
		t.Parallel()

		store := newTestSQLiteStore(t)
		_, err := NewSQLiteStore(context.Background(), store.db)
		assert.NoError(t, err)
	})
}

func TestForeignKeysDSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: ":memory:", want: ":memory:?_pragma=foreign_keys(1)"},
		{in: "file:/data/a.db?_pragma=busy_timeout(5000)", want: "file:/data/a.db?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"},
		{in: "file:/data/a.db?_pragma=foreign_keys(1)", want: "file:/data/a.db?_pragma=foreign_keys(1)"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, ForeignKeysDSN(tt.in))
		})
	}
}

func TestOpenSQLiteForeignKeys(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "stageplan.db") + "?_pragma=busy_timeout(5000)"
	store, err := OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	// 2本の接続を同時に確保し、どちらでも外部キー制約が有効であることを確かめる
	first, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer func() { _ = first.Close() }()
	second, err := store.db.Conn(ctx)
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	for i, conn := range []*sql.Conn{first, second} {
		var enabled int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&enabled))
		assert.Equal(t, 1, enabled, "接続%d", i)

		_, err := conn.ExecContext(ctx,
			`INSERT INTO project_members (project_id, sort_order, name) VALUES ('missing', ?, 'x')`, i)
		assert.Error(t, err, "接続%dで存在しないプロジェクトへのメンバー追加が成功した", i)
	}
}
