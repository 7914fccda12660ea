package poller

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTopic   = "checkout-outbox"
	DefaultGroupID = "storefront-cart-consumer"
)

// Clearer drops the cached cart of a member whose checkout completed.
type Clearer interface {
	ClearMember(ctx context.Context, memberID string) bool
}

type Config struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller consumes checkout events and clears the local cart of the member
// that checked out, so the next read does not show already purchased lines.
type Poller struct {
	reader  messageReader
	clearer Clearer
	log     logrus.FieldLogger
	backoff time.Duration
}

func NewPoller(cfg Config, clearer Clearer, log logrus.FieldLogger) *Poller {
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}
	group := cfg.GroupID
	if group == "" {
		group = DefaultGroupID
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    topic,
		GroupID:  group,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(reader, clearer, log)
}

func newPoller(reader messageReader, clearer Clearer, log logrus.FieldLogger) *Poller {
	return &Poller{
		reader:  reader,
		clearer: clearer,
		log:     log.WithField("component", "checkout-poller"),
		backoff: time.Second,
	}
}

// Run blocks until ctx is cancelled or the reader is closed.
func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.next(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.log.WithError(err).Warn("error reading checkout message")
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.WithError(err).Warn("error closing reader")
	}
}

func (p *Poller) next(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}
	p.handleMessage(ctx, m)
	return nil
}

type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

func (p *Poller) handleMessage(ctx context.Context, m kafka.Message) {
	var ev checkoutEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		p.log.WithError(err).WithField("offset", m.Offset).Warn("error parsing checkout message")
		return
	}
	memberID := strings.TrimSpace(ev.UserID)
	if memberID == "" {
		p.log.WithField("offset", m.Offset).Warn("missing or invalid user_id")
		return
	}

	cleared := p.clearer.ClearMember(ctx, memberID)
	p.log.WithFields(logrus.Fields{
		"checkout_id": ev.CheckoutID,
		"member_id":   memberID,
		"cleared":     cleared,
	}).Info("checkout completed")
}
