package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

type (
	Writer  = kafka.Writer
	Reader  = kafka.Reader
	Message = kafka.Message
)

// MessageWriter é o subconjunto de *kafka.Writer usado pelos produtores
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewWriter cria um writer com particionamento por chave.
// Mensagens da mesma conta caem na mesma partição e mantêm a ordem.
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(SplitBrokers(brokers)...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           10 * time.Millisecond, // publish é síncrono no pós-commit
		AllowAutoTopicCreation: true,
	}
}

func NewReader(brokers string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        SplitBrokers(brokers),
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
	})
}

// SplitBrokers converte "a:9092, b:9092" em lista, ignorando vazios
func SplitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// JSONMessage serializa v como valor de uma mensagem com a chave informada
func JSONMessage(key string, v any) (kafka.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal kafka message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  time.Now(),
	}, nil
}

// helper pra enviar uma mensagem JSON simples
func WriteJSON(ctx context.Context, w MessageWriter, key string, v any) error {
	msg, err := JSONMessage(key, v)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, msg)
}
