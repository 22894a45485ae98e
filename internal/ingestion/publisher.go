package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"PoolCore/internal/core"
)

// Publisher forwards settlement records to NATS for downstream consumers
// (broker keepers, analytics). Subjects follow the pattern
// pool.settlement.records.{record_type}.{asset_id}. Publishing is best
// effort; the Postgres settlement log is the source of truth.
type Publisher struct {
	js        jetstream.JetStream
	inputChan <-chan core.Output
	log       zerolog.Logger
}

// publishedRecord is the outbound wire form of a settlement record.
type publishedRecord struct {
	Sequence   int64       `json:"sequence"`
	RecordType string      `json:"record_type"`
	AssetID    uint8       `json:"asset_id"`
	OrderID    uint64      `json:"order_id,omitempty"`
	Account    string      `json:"account"`
	Payload    interface{} `json:"payload"`
	Timestamp  time.Time   `json:"timestamp"`
}

func NewPublisher(js jetstream.JetStream, inputChan <-chan core.Output, log zerolog.Logger) *Publisher {
	return &Publisher{
		js:        js,
		inputChan: inputChan,
		log:       log,
	}
}

// Run drains the publish channel until ctx is cancelled or the channel
// closes. Failures are logged and skipped; consumers needing a complete
// feed read the settlement log.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case out, ok := <-p.inputChan:
			if !ok {
				return nil
			}
			if err := p.publish(ctx, out); err != nil {
				p.log.Warn().Err(err).Int64("sequence", out.Envelope.Sequence).Msg("outbound publish failed")
			}
		}
	}
}

func (p *Publisher) publish(ctx context.Context, out core.Output) error {
	rec := publishedRecord{
		Sequence:   out.Envelope.Sequence,
		RecordType: out.Envelope.RecordType.String(),
		AssetID:    uint8(out.Envelope.AssetID),
		OrderID:    out.Envelope.OrderID,
		Account:    out.Envelope.Account,
		Payload:    out.Envelope.Payload,
		Timestamp:  out.Envelope.Timestamp,
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	subject := fmt.Sprintf("pool.settlement.records.%s.%d", rec.RecordType, rec.AssetID)
	_, err = p.js.Publish(ctx, subject, data)
	return err
}
