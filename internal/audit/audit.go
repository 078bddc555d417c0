// Package audit emits one event per auth operation to Kafka and mirrors it
// into an Elasticsearch index so the security team can search the trail.
// Audit failures are logged and swallowed: they must never fail the request.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/segmentio/kafka-go"

	"github.com/skorenev/marketplace/internal/logging"
)

const publishTimeout = 5 * time.Second

type Event struct {
	Type      string    `json:"type"`
	UserID    string    `json:"user_id,omitempty"`
	Email     string    `json:"email,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	At        time.Time `json:"at"`
}

type Recorder struct {
	Writer *kafka.Writer
	ES     *elasticsearch.Client
	Index  string
}

func NewRecorder(kafkaAddr, topic string, es *elasticsearch.Client, index string) *Recorder {
	rec := &Recorder{ES: es, Index: index}
	if kafkaAddr != "" {
		rec.Writer = &kafka.Writer{
			Addr:         kafka.TCP(kafkaAddr),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
	}
	return rec
}

func (r *Recorder) Record(ctx context.Context, ev Event) {
	l := logging.FromContext(ctx).With("audit", ev.Type)
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		l.Error("audit_marshal_failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if r.Writer != nil {
		msg := kafka.Message{Key: []byte(ev.UserID), Value: data}
		if err := r.Writer.WriteMessages(ctx, msg); err != nil {
			l.Error("audit_publish_failed", "error", err)
		}
	}

	if r.ES != nil {
		res, err := r.ES.Index(r.Index, bytes.NewReader(data), r.ES.Index.WithContext(ctx))
		if err != nil {
			l.Error("audit_index_failed", "error", err)
			return
		}
		defer res.Body.Close()
		if res.IsError() {
			l.Error("audit_index_failed", "status", res.Status())
		}
	}
}

func (r *Recorder) Close() error {
	if r.Writer != nil {
		return r.Writer.Close()
	}
	return nil
}
