package kafka

import (
	"context"
	"errors"
	"sync"

	"github.com/BRO3886/productsync/internal/queue"
	"github.com/IBM/sarama"
	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
)

type KafkaDequeuer struct {
	mu             sync.Mutex
	consumerGroups map[string]sarama.ConsumerGroup
	cfg            *Config
	log            zerolog.Logger
}

func NewDequeuer(ctx context.Context, c *Config, log zerolog.Logger) (queue.Dequeuer, error) {
	d := &KafkaDequeuer{
		consumerGroups: make(map[string]sarama.ConsumerGroup),
		cfg:            c,
		log:            log,
	}
	for _, topic := range c.GetTopics() {
		if _, err := d.group(topic); err != nil {
			d.Close()
			return nil, err
		}
	}
	return d, nil
}

func (k *KafkaDequeuer) group(topic string) (sarama.ConsumerGroup, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if cg, ok := k.consumerGroups[topic]; ok {
		return cg, nil
	}
	cg, err := sarama.NewConsumerGroup(k.cfg.GetBrokers(), k.cfg.GetGroup(topic), k.cfg.GetConfig())
	if err != nil {
		return nil, err
	}
	k.consumerGroups[topic] = cg
	return cg, nil
}

// Dequeue consumes topic until ctx is cancelled or the handler fails.
// Consume returns on every rebalance, so it is called in a loop.
func (k *KafkaDequeuer) Dequeue(ctx context.Context, topic string, handler queue.MessageHandler) error {
	consumerGroup, err := k.group(topic)
	if err != nil {
		return err
	}

	h := NewConsumerGroupHandler(handler, k.log)
	for {
		if err := consumerGroup.Consume(ctx, []string{topic}, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
		if err := h.Err(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (k *KafkaDequeuer) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	var result *multierror.Error
	for topic, cg := range k.consumerGroups {
		if err := cg.Close(); err != nil {
			result = multierror.Append(result, err)
		}
		delete(k.consumerGroups, topic)
	}
	return result.ErrorOrNil()
}
