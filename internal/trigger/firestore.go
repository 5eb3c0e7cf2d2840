// Package trigger adapts platform invocations (Firestore CloudEvents and
// HTTP requests) into change notifications for the indexsync router.
package trigger

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BRO3886/productsync/internal/types"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/googleapis/google-cloudevents-go/cloud/firestoredata"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

const (
	EventCreated = "google.cloud.firestore.document.v1.created"
	EventUpdated = "google.cloud.firestore.document.v1.updated"
	EventDeleted = "google.cloud.firestore.document.v1.deleted"
	EventWritten = "google.cloud.firestore.document.v1.written"
)

// Router is satisfied by *indexsync.Router.
type Router interface {
	Route(ctx context.Context, n types.ChangeNotification) error
}

type Firestore struct {
	router Router
	log    zerolog.Logger
}

func NewFirestore(r Router, log zerolog.Logger) *Firestore {
	return &Firestore{router: r, log: log}
}

// HandleEvent decodes a Firestore document event and routes it. Decoding
// failures are returned; redelivering the same payload cannot fix them but
// the platform needs to see them.
func (f *Firestore) HandleEvent(ctx context.Context, e event.Event) error {
	n, err := DecodeEvent(e)
	if err != nil {
		f.log.Error().Err(err).Str("event_id", e.ID()).Str("type", e.Type()).Msg("error decoding firestore event")
		return err
	}

	f.log.Debug().
		Str("event_id", e.ID()).
		Str("document", n.Document).
		Str("kind", string(n.Kind)).
		Msg("firestore event received")

	return f.router.Route(ctx, n)
}

// DecodeEvent converts a Firestore CloudEvent into a change notification.
func DecodeEvent(e event.Event) (types.ChangeNotification, error) {
	var data firestoredata.DocumentEventData
	if strings.Contains(e.DataContentType(), "json") {
		if err := (protojson.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(e.Data(), &data); err != nil {
			return types.ChangeNotification{}, fmt.Errorf("error unmarshalling event data: %w", err)
		}
	} else {
		if err := (proto.UnmarshalOptions{DiscardUnknown: true}).Unmarshal(e.Data(), &data); err != nil {
			return types.ChangeNotification{}, fmt.Errorf("error unmarshalling event data: %w", err)
		}
	}

	kind, err := eventKind(e.Type(), &data)
	if err != nil {
		return types.ChangeNotification{}, err
	}

	// deleted documents only carry the old value
	doc := data.GetValue()
	if kind == types.KindDeleted && data.GetOldValue() != nil {
		doc = data.GetOldValue()
	}

	name := doc.GetName()
	if name == "" {
		name = strings.TrimPrefix(e.Subject(), "documents/")
	}
	path := documentPath(name)
	if path == "" {
		return types.ChangeNotification{}, fmt.Errorf("event %s has no document name", e.ID())
	}

	n := types.ChangeNotification{
		Kind:      kind,
		Document:  path,
		ID:        path[strings.LastIndex(path, "/")+1:],
		TimeStamp: e.Time().UnixMilli(),
	}
	if kind != types.KindDeleted {
		n.Data = decodeFields(data.GetValue().GetFields())
	}
	return n, nil
}

func eventKind(eventType string, data *firestoredata.DocumentEventData) (types.Kind, error) {
	switch eventType {
	case EventCreated:
		return types.KindCreated, nil
	case EventUpdated:
		return types.KindUpdated, nil
	case EventDeleted:
		return types.KindDeleted, nil
	case EventWritten:
		switch {
		case data.GetValue() == nil:
			return types.KindDeleted, nil
		case data.GetOldValue() == nil:
			return types.KindCreated, nil
		default:
			return types.KindUpdated, nil
		}
	}
	return "", fmt.Errorf("unsupported event type: %q", eventType)
}

// documentPath strips "projects/{p}/databases/{d}/documents/" from a
// document resource name.
func documentPath(name string) string {
	if i := strings.Index(name, "/documents/"); i >= 0 && strings.HasPrefix(name, "projects/") {
		name = name[i+len("/documents/"):]
	}
	return strings.Trim(name, "/")
}

func decodeFields(fields map[string]*firestoredata.Value) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = decodeValue(v)
	}
	return out
}

func decodeValue(v *firestoredata.Value) any {
	switch v.GetValueType().(type) {
	case *firestoredata.Value_BooleanValue:
		return v.GetBooleanValue()
	case *firestoredata.Value_IntegerValue:
		return v.GetIntegerValue()
	case *firestoredata.Value_DoubleValue:
		// JSON has no encoding for NaN or the infinities
		f := v.GetDoubleValue()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case *firestoredata.Value_TimestampValue:
		return v.GetTimestampValue().AsTime().UTC().Format(time.RFC3339Nano)
	case *firestoredata.Value_StringValue:
		return v.GetStringValue()
	case *firestoredata.Value_BytesValue:
		return base64.StdEncoding.EncodeToString(v.GetBytesValue())
	case *firestoredata.Value_ReferenceValue:
		return v.GetReferenceValue()
	case *firestoredata.Value_GeoPointValue:
		g := v.GetGeoPointValue()
		return map[string]any{"lat": g.GetLatitude(), "lon": g.GetLongitude()}
	case *firestoredata.Value_ArrayValue:
		values := v.GetArrayValue().GetValues()
		out := make([]any, len(values))
		for i, item := range values {
			out[i] = decodeValue(item)
		}
		return out
	case *firestoredata.Value_MapValue:
		return decodeFields(v.GetMapValue().GetFields())
	default:
		return nil
	}
}
