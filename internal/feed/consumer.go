package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	"github.com/roach88/arbor/internal/config"
)

// Poller is the consuming side of the feed. Consumer implements it over
// Kafka; tests supply canned fetches.
type Poller interface {
	Poll(ctx context.Context) kgo.Fetches
	CommitOffsets(ctx context.Context) error
	Close()
}

// Consumer wraps a franz-go consumer-group client.
type Consumer struct {
	client *kgo.Client
	cfg    config.Feed
}

// NewConsumer creates a consumer for the feed topic. Offsets are committed
// manually, after a batch has been applied to the index.
func NewConsumer(cfg config.Feed) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.ConsumerGroup == "" {
		return nil, fmt.Errorf("feed needs brokers, topic and consumer group")
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),
		kgo.DisableAutoCommit(),
		kgo.ClientID("arbor-index-feed"),
		kgo.DialTimeout(10 * time.Second),
		kgo.SessionTimeout(time.Minute),
		kgo.FetchMaxWait(5 * time.Second),
	}
	if cfg.FromBeginning {
		opts = append(opts, kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()))
	}
	if cfg.SASLUsername != "" && cfg.SASLPassword != "" {
		sasl, err := saslMechanism(cfg.SASLMechanism, cfg.SASLUsername, cfg.SASLPassword)
		if err != nil {
			return nil, err
		}
		opts = append(opts, sasl)
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Consumer{client: client, cfg: cfg}, nil
}

func saslMechanism(mechanism, user, pass string) (kgo.Opt, error) {
	switch mechanism {
	case "", "PLAIN":
		return kgo.SASL(plain.Auth{User: user, Pass: pass}.AsMechanism()), nil
	case "SCRAM-SHA-256":
		return kgo.SASL(scram.Auth{User: user, Pass: pass}.AsSha256Mechanism()), nil
	case "SCRAM-SHA-512":
		return kgo.SASL(scram.Auth{User: user, Pass: pass}.AsSha512Mechanism()), nil
	}
	return nil, fmt.Errorf("unsupported SASL mechanism %q", mechanism)
}

// Poll fetches the next batch of records.
func (c *Consumer) Poll(ctx context.Context) kgo.Fetches {
	return c.client.PollFetches(ctx)
}

// CommitOffsets commits everything polled so far.
func (c *Consumer) CommitOffsets(ctx context.Context) error {
	return c.client.CommitUncommittedOffsets(ctx)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}
