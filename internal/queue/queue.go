package queue

import "context"

// Message is a single queue entry. Key selects the partition so every
// change to one document lands on the same partition.
type Message struct {
	Key   string
	Value []byte
}

type Enqueuer interface {
	Enqueue(ctx context.Context, topic string, msg Message) error
	Close() error
}

type MessageHandler func(ctx context.Context, data []byte) error

type Dequeuer interface {
	Dequeue(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}
