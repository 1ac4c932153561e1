package message

import "time"

// Metadata holds the attributes shared by every entry in a broker batch:
// who produced it, when, and the routing/schema attributes. Optional fields
// use pointers so that "absent" is distinguishable from a zero value, which
// the batch entry merge in FromBatchEntry depends on.
type Metadata struct {
	ProducerName  string            `json:"producer_name,omitempty"`
	SequenceID    *uint64           `json:"sequence_id,omitempty"`
	PublishTime   time.Time         `json:"publish_time,omitempty"`
	PartitionKey  *string           `json:"partition_key,omitempty"`
	OrderingKey   *string           `json:"ordering_key,omitempty"`
	EventTime     *time.Time        `json:"event_time,omitempty"`
	SchemaVersion []byte            `json:"schema_version,omitempty"`
	Properties    map[string]string `json:"properties,omitempty"`
}

// Clone returns a deep copy. The copy shares no mutable state with the
// original, so a decoded message cannot alias the batch envelope.
func (m Metadata) Clone() Metadata {
	out := m
	out.SequenceID = cloneUint64(m.SequenceID)
	out.PartitionKey = cloneString(m.PartitionKey)
	out.OrderingKey = cloneString(m.OrderingKey)
	out.EventTime = cloneTime(m.EventTime)
	if m.SchemaVersion != nil {
		out.SchemaVersion = append([]byte(nil), m.SchemaVersion...)
	}
	out.Properties = cloneProperties(m.Properties)
	return out
}

// EntryMeta carries the per-entry fields of a batch that may override the
// batch-level Metadata. Each field is independently present-or-absent;
// a nil field means absent.
type EntryMeta struct {
	PartitionKey *string           `json:"partition_key,omitempty"`
	OrderingKey  *string           `json:"ordering_key,omitempty"`
	EventTime    *time.Time        `json:"event_time,omitempty"`
	SequenceID   *uint64           `json:"sequence_id,omitempty"`
	Properties   map[string]string `json:"properties,omitempty"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneUint64(u *uint64) *uint64 {
	if u == nil {
		return nil
	}
	v := *u
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneProperties(props map[string]string) map[string]string {
	out := make(map[string]string, len(props))
	for k, v := range props {
		out[k] = v
	}
	return out
}
