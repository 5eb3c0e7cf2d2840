package types

// IDField is stripped from payloads since the identifier travels separately.
const IDField = "id"

type IndexRecord struct {
	ID    string
	Index string
	Data  map[string]any
}

// NewIndexRecord copies payload into a fresh record body, leaving out the
// "id" field. The payload itself is not modified.
func NewIndexRecord(index, id string, payload map[string]any) IndexRecord {
	data := make(map[string]any, len(payload))
	for k, v := range payload {
		if k == IDField {
			continue
		}
		data[k] = v
	}
	return IndexRecord{
		ID:    id,
		Index: index,
		Data:  data,
	}
}
