package event

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Publisher はイベントをメッセージブローカーへ送出する。
type Publisher interface {
	Publish(ctx context.Context, e *Event) error
	Close() error
}

// messageWriter はkafka.Writerのうち送信に必要な操作。
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	// publishTimeout は1イベントの送信にかける最大時間。
	publishTimeout = 2 * time.Second
	// batchTimeout は送信前にバッチが埋まるのを待つ最大時間。
	// イベントはリクエスト処理中に1件ずつ送るため、待たずに送る。
	batchTimeout = 10 * time.Millisecond
)

// KafkaPublisher はイベントを1つのKafkaトピックへ書き込む。
// メッセージキーにはAggregateIDを使い、同じエンティティのイベント順序を保つ。
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher は指定ブローカーとトピックに書き込むKafkaPublisherを生成する。
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			BatchSize:    1,
			BatchTimeout: batchTimeout,
			WriteTimeout: publishTimeout,
		},
	}
}

// Publish はイベントをJSONにシリアライズして書き込む。
// 呼び出し元のコンテキストに期限がなくてもpublishTimeoutで打ち切る。
func (p *KafkaPublisher) Publish(ctx context.Context, e *Event) error {
	body, err := Encode(e)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(e.AggregateID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.EventType)},
			{Key: "event_id", Value: []byte(e.ID)},
		},
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("イベントの送信に失敗: %w", err)
	}
	return nil
}

// Close は内部のライターを閉じる。
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher はイベントを破棄するPublisher。ブローカー未設定時に使う。
type NopPublisher struct{}

// Publish は何もしない。
func (NopPublisher) Publish(context.Context, *Event) error { return nil }

// Close は何もしない。
func (NopPublisher) Close() error { return nil }
