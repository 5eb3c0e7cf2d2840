package kafka

import (
	"fmt"
	"sync"

	"github.com/BRO3886/productsync/internal/queue"
	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
)

type ConsumerGroupHandler struct {
	handler queue.MessageHandler
	log     zerolog.Logger

	mu  sync.Mutex
	err error
}

func NewConsumerGroupHandler(handler queue.MessageHandler, log zerolog.Logger) *ConsumerGroupHandler {
	return &ConsumerGroupHandler{
		handler: handler,
		log:     log,
	}
}

// Err is the handler failure that ended the last session, if any.
func (c *ConsumerGroupHandler) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *ConsumerGroupHandler) setErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Cleanup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim implements sarama.ConsumerGroupHandler. A message is marked
// only after the handler accepted it; a failing message ends the session and
// is delivered again by the next one.
func (c *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) (err error) {
	log := c.log.With().Str("topic", claim.Topic()).Int32("partition", claim.Partition()).Logger()
	log.Info().Msg("consuming claim")
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling message: %v", r)
			log.Error().Err(err).Msg("recovered")
			c.setErr(err)
		}
	}()

	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.handler(session.Context(), message.Value); err != nil {
				log.Error().Err(err).Int64("offset", message.Offset).Msg("error handling message")
				c.setErr(err)
				return err
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

// Setup implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	c.setErr(nil)
	return nil
}
