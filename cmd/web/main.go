// stageplan webのエントリポイント。
// リクエストごとにセッションを検証してルートへのアクセスを制御し、
// プロジェクト作成とサインアウトを受け付ける。
package main

import (
	"context"
	"errors"
	"log"

	"github.com/nao1215/stageplan/internal/config"
	"github.com/nao1215/stageplan/internal/project"
	"github.com/nao1215/stageplan/internal/web"
	"github.com/nao1215/stageplan/pkg/event"
	"github.com/nao1215/stageplan/pkg/identity"
)

// projectStore は起動時に選択するプロジェクトストア。
type projectStore interface {
	project.Store
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		var missing *config.MissingError
		if errors.As(err, &missing) {
			log.Fatalf("設定が不足しています: %v", missing)
		}
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("プロジェクトストアの初期化に失敗: %v", err)
	}
	defer store.Close()

	publisher := newPublisher(cfg)
	defer publisher.Close()

	client := identity.New(cfg.IdentityURL, cfg.IdentityAnonKey, cfg.IdentityTimeout)
	server := web.NewServer(cfg, client, project.NewService(store, publisher), publisher)

	log.Printf("stageplan webを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		log.Fatalf("stageplan webの起動に失敗: %v", err)
	}
}

// openStore はDATABASE_URLに応じてSQLiteまたはPostgreSQLのストアを開く。
func openStore(ctx context.Context, cfg config.Config) (projectStore, error) {
	if cfg.UsesPostgres() {
		log.Printf("[Store] PostgreSQLを使用します")
		return project.OpenPostgres(ctx, cfg.DatabaseURL)
	}
	log.Printf("[Store] SQLiteを使用します")
	return project.OpenSQLite(ctx, cfg.DatabaseURL)
}

// newPublisher はKAFKA_BROKERSが設定されていればKafkaへのPublisherを返す。
func newPublisher(cfg config.Config) event.Publisher {
	if len(cfg.KafkaBrokers) == 0 {
		log.Printf("[Event] KAFKA_BROKERSが未設定のためイベントを送出しません")
		return event.NopPublisher{}
	}
	log.Printf("[Event] Kafkaへイベントを送出します: topic=%s", cfg.ProjectEventsTopic)
	return event.NewKafkaPublisher(cfg.KafkaBrokers, cfg.ProjectEventsTopic)
}
