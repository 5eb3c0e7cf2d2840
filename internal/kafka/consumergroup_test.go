package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSession struct {
	sarama.ConsumerGroupSession
	ctx    context.Context
	marked []int64
}

func (s *fakeSession) Context() context.Context { return s.ctx }

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.marked = append(s.marked, msg.Offset)
}

type fakeClaim struct {
	sarama.ConsumerGroupClaim
	messages chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "product-notifications" }

func (c *fakeClaim) Partition() int32 { return 0 }

func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

func newClaim(values ...string) *fakeClaim {
	ch := make(chan *sarama.ConsumerMessage, len(values))
	for i, v := range values {
		ch <- &sarama.ConsumerMessage{Offset: int64(i), Value: []byte(v)}
	}
	close(ch)
	return &fakeClaim{messages: ch}
}

func TestConsumeClaim_MarksHandledMessages(t *testing.T) {
	var seen []string
	h := NewConsumerGroupHandler(func(_ context.Context, data []byte) error {
		seen = append(seen, string(data))
		return nil
	}, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	require.NoError(t, h.Setup(session))
	err := h.ConsumeClaim(session, newClaim("a", "b", "c"))

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, []int64{0, 1, 2}, session.marked)
	assert.NoError(t, h.Err())
}

func TestConsumeClaim_StopsOnHandlerError(t *testing.T) {
	boom := errors.New("index unavailable")
	h := NewConsumerGroupHandler(func(_ context.Context, data []byte) error {
		if string(data) == "b" {
			return boom
		}
		return nil
	}, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	err := h.ConsumeClaim(session, newClaim("a", "b", "c"))

	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, h.Err(), boom)
	// "b" stays unmarked so it is redelivered
	assert.Equal(t, []int64{0}, session.marked)

	require.NoError(t, h.Setup(session))
	assert.NoError(t, h.Err())
}

func TestConsumeClaim_RecoversPanics(t *testing.T) {
	h := NewConsumerGroupHandler(func(context.Context, []byte) error {
		panic("nil map")
	}, zerolog.Nop())
	session := &fakeSession{ctx: context.Background()}

	err := h.ConsumeClaim(session, newClaim("a"))

	assert.ErrorContains(t, err, "panic handling message")
	assert.Empty(t, session.marked)
}

func TestConsumeClaim_StopsWhenSessionEnds(t *testing.T) {
	h := NewConsumerGroupHandler(func(context.Context, []byte) error { return nil }, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	session := &fakeSession{ctx: ctx}

	// an open, empty claim would block forever without the session check
	claim := &fakeClaim{messages: make(chan *sarama.ConsumerMessage)}

	assert.NoError(t, h.ConsumeClaim(session, claim))
}
