package types

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// ChangeNotification is a document change as delivered by the document store,
// a Kafka topic or the dead-letter queue.
type ChangeNotification struct {
	Kind      Kind           `json:"kind,omitempty"`
	Document  string         `json:"document"`
	ID        string         `json:"id,omitempty"`
	Data      map[string]any `json:"data"`
	TimeStamp int64          `json:"ts_ms,omitempty"`
	// Partial marks Data as the changed fields only, merged into the
	// existing record instead of replacing it.
	Partial bool `json:"partial,omitempty"`
	// Error is set on dead-lettered notifications only.
	Error string `json:"error,omitempty"`
}

func (n ChangeNotification) IsDelete() bool {
	return n.Kind == KindDeleted
}

func ParseNotification(data []byte) (ChangeNotification, error) {
	var n ChangeNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return n, err
	}
	switch n.Kind {
	case "":
		n.Kind = KindCreated
	case KindCreated, KindUpdated, KindDeleted:
	default:
		return n, fmt.Errorf("unknown notification kind: %q", n.Kind)
	}
	if n.Document == "" && n.ID == "" {
		return n, fmt.Errorf("notification has neither document nor id")
	}
	return n, nil
}
