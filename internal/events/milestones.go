package events

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/order"
)

// MilestoneMessage is a courier milestone:
// {"orderId","status","completed","at","awb","note"}.
type MilestoneMessage struct {
	OrderID   string
	Milestone order.Milestone
	AWB       string
}

// DecodeMilestone parses a milestone message. orderId and status are
// required; "at" is RFC 3339.
func DecodeMilestone(data []byte) (MilestoneMessage, error) {
	var m MilestoneMessage
	if err := jx.DecodeBytes(data).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "orderId":
			m.OrderID, err = d.Str()
		case "status":
			var s string
			s, err = d.Str()
			m.Milestone.Status = order.ParseStatus(s)
		case "completed":
			m.Milestone.Completed, err = d.Bool()
		case "at":
			var s string
			if s, err = d.Str(); err == nil {
				m.Milestone.At, err = time.Parse(time.RFC3339, s)
			}
		case "awb":
			m.AWB, err = d.Str()
		case "note":
			m.Milestone.Note, err = d.Str()
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	}); err != nil {
		return MilestoneMessage{}, errors.Wrap(err, "decode milestone")
	}
	if m.OrderID == "" {
		return MilestoneMessage{}, errors.New("milestone without orderId")
	}
	if m.Milestone.Status == "" {
		return MilestoneMessage{}, errors.New("milestone without status")
	}
	return m, nil
}

// Reader is the subset of kafka.Reader used by MilestoneConsumer.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// MilestoneRecorder applies a milestone to an order.
type MilestoneRecorder interface {
	RecordMilestone(ctx context.Context, orderID string, m order.Milestone, awb string) (*order.Order, error)
}

// MilestoneConsumer feeds courier milestones into orders. Offsets are
// committed only after a message was applied or found unusable.
type MilestoneConsumer struct {
	reader   Reader
	recorder MilestoneRecorder
	lg       *zap.Logger
	backoff  time.Duration
}

// NewMilestoneReader creates a consumer-group reader for topic.
func NewMilestoneReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// NewMilestoneConsumer creates a MilestoneConsumer.
func NewMilestoneConsumer(r Reader, recorder MilestoneRecorder, lg *zap.Logger) *MilestoneConsumer {
	return &MilestoneConsumer{reader: r, recorder: recorder, lg: lg, backoff: time.Second}
}

// Run consumes until ctx is done.
func (c *MilestoneConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.lg.Warn("Fetch milestone", zap.Error(err))
			if !c.sleep(ctx) {
				return nil
			}
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit")
		}
	}
}

// handle applies msg, retrying transient failures until ctx is done.
func (c *MilestoneConsumer) handle(ctx context.Context, msg kafka.Message) error {
	lg := c.lg.With(zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))

	m, err := DecodeMilestone(msg.Value)
	if err != nil {
		lg.Warn("Skip malformed milestone", zap.Error(err))
		return nil
	}
	lg = lg.With(zap.String("order_id", m.OrderID), zap.String("status", string(m.Milestone.Status)))

	for {
		o, err := c.recorder.RecordMilestone(ctx, m.OrderID, m.Milestone, m.AWB)
		switch {
		case err == nil:
			lg.Info("Milestone recorded", zap.String("order_status", string(o.Status)))
			return nil
		case errors.Is(err, order.ErrNotFound):
			lg.Warn("Skip milestone for unknown order")
			return nil
		}
		lg.Warn("Record milestone, retrying", zap.Error(err))
		if !c.sleep(ctx) {
			return ctx.Err()
		}
	}
}

func (c *MilestoneConsumer) sleep(ctx context.Context) bool {
	t := time.NewTimer(c.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
