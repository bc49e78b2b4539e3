package enrichment

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/BearBump/OrderBox/internal/broker/messages"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// Scheduler enqueues enrichment jobs keyed by order id, so jobs for one
// order are consumed in publish order.
type Scheduler struct {
	pub   Publisher
	topic string
	now   func() time.Time
}

func NewScheduler(pub Publisher, topic string) *Scheduler {
	return &Scheduler{pub: pub, topic: topic, now: time.Now}
}

func (s *Scheduler) ScheduleEnrich(ctx context.Context, orderID, companyID uint64) error {
	msg := messages.OrderEnrichRequested{
		JobID:       uuid.NewString(),
		OrderID:     orderID,
		CompanyID:   companyID,
		RequestedAt: s.now().UTC(),
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal enrich job")
	}
	return s.pub.Publish(ctx, s.topic, []byte(strconv.FormatUint(orderID, 10)), b)
}

// DecodeJob parses a queued job. A job without order or company is invalid.
func DecodeJob(value []byte) (messages.OrderEnrichRequested, error) {
	var msg messages.OrderEnrichRequested
	if err := json.Unmarshal(value, &msg); err != nil {
		return msg, errors.Wrap(err, "decode enrich job")
	}
	if msg.OrderID == 0 || msg.CompanyID == 0 {
		return msg, errors.New("enrich job without order_id or company_id")
	}
	return msg, nil
}
