package message

import (
	"encoding/binary"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is the immutable logical view of one application message as
// delivered to (or acknowledged for) application code. All accessors are
// safe on a nil receiver and return defined empty values, so an unbound or
// zero message never produces undefined behavior.
//
// The only mutation after construction is the one-time late binding of the
// broker-assigned MessageID via BindID.
type Message struct {
	mu    sync.Mutex
	id    MessageID
	idSet bool

	meta            Metadata
	payload         []byte
	topic           string
	redeliveryCount int32
}

// New creates an unbound message from producer-side metadata and payload.
// Its ID reports the invalid sentinel until BindID is called after broker
// acknowledgment.
func New(meta Metadata, payload []byte) *Message {
	m := &Message{meta: meta, payload: payload}
	if m.meta.Properties == nil {
		m.meta.Properties = map[string]string{}
	}
	return m
}

// NewWithID creates a bound message, used for non-batched deliveries where
// the broker metadata applies to the single entry as-is.
func NewWithID(id MessageID, meta Metadata, payload []byte, topic string) *Message {
	m := New(meta, payload)
	m.id = id
	m.idSet = true
	m.topic = topic
	return m
}

// FromBatchEntry reconstructs one logical message out of a broker batch.
//
// The merged metadata starts as a copy of the batch envelope, then:
//
//   - properties are replaced entirely by the entry's properties, even when
//     the entry carries none; batch-level properties never leak through
//   - partition key, ordering key, event time and sequence id are each taken
//     from the entry when present, and cleared otherwise; they are never
//     inherited from the batch envelope
//
// payload must be the exact byte slice belonging to this entry. Malformed
// framing input is a precondition violation of the caller, not a recoverable
// error here.
func FromBatchEntry(id MessageID, batch Metadata, payload []byte, entry EntryMeta, batchIndex int32, topic string) *Message {
	meta := batch.Clone()

	meta.Properties = cloneProperties(entry.Properties)
	meta.PartitionKey = cloneString(entry.PartitionKey)
	meta.OrderingKey = cloneString(entry.OrderingKey)
	meta.EventTime = cloneTime(entry.EventTime)
	meta.SequenceID = cloneUint64(entry.SequenceID)

	id.BatchIndex = batchIndex
	return &Message{
		id:      id,
		idSet:   true,
		meta:    meta,
		payload: payload,
		topic:   topic,
	}
}

// ID returns the broker-assigned id, or the invalid sentinel when unbound.
func (m *Message) ID() MessageID {
	if m == nil {
		return InvalidMessageID()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.idSet {
		return InvalidMessageID()
	}
	return m.id
}

// BindID late-binds the broker-assigned id after acknowledgment. The
// assignment happens exactly once, from unset to a concrete id; further
// calls are ignored and report false.
func (m *Message) BindID(id MessageID) bool {
	if m == nil {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.idSet {
		return false
	}
	m.id = id
	m.idSet = true
	return true
}

// Equals reports message equality, defined exactly as equality of ids.
func (m *Message) Equals(other *Message) bool {
	return m.ID() == other.ID()
}

// Meta returns a copy of the message metadata, detached from the message
func (m *Message) Meta() Metadata {
	if m == nil {
		return Metadata{}
	}
	return m.meta.Clone()
}

// Properties returns the message properties. The map is owned by the
// message and must be treated as read-only. Never nil.
func (m *Message) Properties() map[string]string {
	if m == nil || m.meta.Properties == nil {
		return map[string]string{}
	}
	return m.meta.Properties
}

// HasProperty reports whether the named property is present
func (m *Message) HasProperty(name string) bool {
	if m == nil {
		return false
	}
	_, ok := m.meta.Properties[name]
	return ok
}

// Property returns the named property value, or "" when absent
func (m *Message) Property(name string) string {
	if m == nil {
		return ""
	}
	return m.meta.Properties[name]
}

// Data returns the exact payload bytes belonging to this entry
func (m *Message) Data() []byte {
	if m == nil {
		return nil
	}
	return m.payload
}

// Len returns the payload size in bytes
func (m *Message) Len() int {
	if m == nil {
		return 0
	}
	return len(m.payload)
}

// DataAsString returns the payload as a string
func (m *Message) DataAsString() string {
	return string(m.Data())
}

// ProducerName returns the name of the producer that published the message
func (m *Message) ProducerName() string {
	if m == nil {
		return ""
	}
	return m.meta.ProducerName
}

// SequenceID returns the producer sequence id, or 0 when not present
func (m *Message) SequenceID() uint64 {
	if m == nil || m.meta.SequenceID == nil {
		return 0
	}
	return *m.meta.SequenceID
}

// HasSequenceID reports whether a sequence id is present on the merged view
func (m *Message) HasSequenceID() bool {
	return m != nil && m.meta.SequenceID != nil
}

// HasPartitionKey reports whether a partition key is present
func (m *Message) HasPartitionKey() bool {
	return m != nil && m.meta.PartitionKey != nil
}

// PartitionKey returns the partition key, or "" when absent
func (m *Message) PartitionKey() string {
	if m == nil || m.meta.PartitionKey == nil {
		return ""
	}
	return *m.meta.PartitionKey
}

// HasOrderingKey reports whether an ordering key is present
func (m *Message) HasOrderingKey() bool {
	return m != nil && m.meta.OrderingKey != nil
}

// OrderingKey returns the ordering key, or "" when absent
func (m *Message) OrderingKey() string {
	if m == nil || m.meta.OrderingKey == nil {
		return ""
	}
	return *m.meta.OrderingKey
}

// PublishTime returns when the broker accepted the batch; zero when unset
func (m *Message) PublishTime() time.Time {
	if m == nil {
		return time.Time{}
	}
	return m.meta.PublishTime
}

// HasEventTime reports whether an application event time is present
func (m *Message) HasEventTime() bool {
	return m != nil && m.meta.EventTime != nil
}

// EventTime returns the application event time, or the zero time when absent
func (m *Message) EventTime() time.Time {
	if m == nil || m.meta.EventTime == nil {
		return time.Time{}
	}
	return *m.meta.EventTime
}

// HasSchemaVersion reports whether a schema version is attached
func (m *Message) HasSchemaVersion() bool {
	return m != nil && len(m.meta.SchemaVersion) > 0
}

// SchemaVersion returns the raw schema version bytes, or nil when absent
func (m *Message) SchemaVersion() []byte {
	if m == nil {
		return nil
	}
	return m.meta.SchemaVersion
}

// LongSchemaVersion returns the schema version decoded as a big-endian
// int64, or -1 when no schema version is attached.
func (m *Message) LongSchemaVersion() int64 {
	if m == nil || len(m.meta.SchemaVersion) != 8 {
		return -1
	}
	return int64(binary.BigEndian.Uint64(m.meta.SchemaVersion))
}

// TopicName returns the source topic the message was received from. For a
// partitioned topic this is the partition-suffixed name. Carries no
// validation; "" when the message was not received from a topic.
func (m *Message) TopicName() string {
	if m == nil {
		return ""
	}
	return m.topic
}

// RedeliveryCount returns how many times the broker redelivered the message
func (m *Message) RedeliveryCount() int32 {
	if m == nil {
		return 0
	}
	return m.redeliveryCount
}

// SetRedeliveryCount records the broker-reported redelivery count
func (m *Message) SetRedeliveryCount(n int32) {
	if m != nil {
		m.redeliveryCount = n
	}
}

// String returns a log-friendly rendering of the message
func (m *Message) String() string {
	if m == nil {
		return "Message(<nil>)"
	}
	return fmt.Sprintf("Message(prod=%s, seq=%d, publish_time=%d, payload_size=%d, msg_id=%s, props=%s)",
		m.ProducerName(), m.SequenceID(), m.PublishTime().UnixMilli(), m.Len(), m.ID(),
		FormatProperties(m.Properties()))
}

// FormatProperties renders a properties map for logging, showing at most 10
// entries in key order with a trailing ellipsis when truncated.
func FormatProperties(props map[string]string) string {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i == 10 {
			b.WriteString(" ...")
			break
		}
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "'%s':'%s'", k, props[k])
	}
	b.WriteByte('}')
	return b.String()
}
