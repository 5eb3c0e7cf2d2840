package kafka

import (
	"context"

	"github.com/BRO3886/productsync/internal/queue"
	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type KafkaEnqueuer struct {
	syncProducer sarama.SyncProducer
	log          zerolog.Logger
}

func NewEnqueuer(ctx context.Context, c *Config, log zerolog.Logger) (queue.Enqueuer, error) {
	syncProducer, err := sarama.NewSyncProducer(c.GetBrokers(), c.GetConfig())
	if err != nil {
		return nil, err
	}

	return NewEnqueuerWithProducer(syncProducer, log), nil
}

func NewEnqueuerWithProducer(p sarama.SyncProducer, log zerolog.Logger) *KafkaEnqueuer {
	return &KafkaEnqueuer{
		syncProducer: p,
		log:          log,
	}
}

func (k *KafkaEnqueuer) Enqueue(ctx context.Context, topic string, m queue.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(m.Value),
	}
	if m.Key != "" {
		msg.Key = sarama.StringEncoder(m.Key)
	}

	partition, offset, err := k.syncProducer.SendMessage(msg)
	if err != nil {
		return err
	}
	k.log.Debug().
		Str("topic", topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("message sent")
	return nil
}

func (k *KafkaEnqueuer) Close() error {
	return k.syncProducer.Close()
}
