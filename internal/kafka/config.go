package kafka

import (
	"time"

	"github.com/IBM/sarama"
)

type Config struct {
	cfg     *sarama.Config
	brokers []string
	topics  []string
	group   string
}

type ConfigOpts func(*Config)

func WithRetry(maxRetries int, backoff time.Duration) ConfigOpts {
	return func(c *Config) {
		c.cfg.Producer.Retry.Max = maxRetries
		c.cfg.Producer.Retry.Backoff = backoff
	}
}

func WithBrokers(brokers ...string) ConfigOpts {
	return func(c *Config) {
		c.brokers = brokers
	}
}

func WithTopics(topics ...string) ConfigOpts {
	return func(c *Config) {
		c.topics = topics
	}
}

func WithConsumerGroup(group string) ConfigOpts {
	return func(c *Config) {
		c.group = group
	}
}

func WithConsumeOldest() ConfigOpts {
	return func(c *Config) {
		c.cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	}
}

func WithClientID(id string) ConfigOpts {
	return func(c *Config) {
		c.cfg.ClientID = id
	}
}

// NewConfig defaults to a producer waiting for all in-sync replicas: a
// dead-lettered notification must not be lost once Enqueue returns.
func NewConfig(opts ...ConfigOpts) *Config {
	s := sarama.NewConfig()
	s.Version = sarama.V2_8_0_0
	s.ClientID = "productsync"
	s.Producer.RequiredAcks = sarama.WaitForAll
	s.Producer.Return.Successes = true
	s.Producer.Return.Errors = true
	s.Producer.Partitioner = sarama.NewHashPartitioner
	cfg := &Config{
		cfg: s,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

func (c *Config) GetTopics() []string {
	return c.topics
}

func (c *Config) GetBrokers() []string {
	return c.brokers
}

// GetGroup falls back to the topic name, as consumer groups were keyed before.
func (c *Config) GetGroup(topic string) string {
	if c.group != "" {
		return c.group
	}
	return topic
}

func (c *Config) GetConfig() *sarama.Config {
	return c.cfg
}
