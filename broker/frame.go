package broker

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/c360/pulsekit/message"
)

// FrameType identifies the purpose of a broker frame
type FrameType string

// Frame types exchanged with the broker. The set mirrors the session-level
// commands the client needs; the broker may define more, which the client
// ignores.
const (
	FrameConnect          FrameType = "CONNECT"
	FrameConnected        FrameType = "CONNECTED"
	FrameLookup           FrameType = "PARTITION_LOOKUP"
	FrameLookupResponse   FrameType = "PARTITION_LOOKUP_RESPONSE"
	FrameCreateProducer   FrameType = "CREATE_PRODUCER"
	FrameProducerSuccess  FrameType = "PRODUCER_SUCCESS"
	FrameSubscribe        FrameType = "SUBSCRIBE"
	FrameSubscribeSuccess FrameType = "SUBSCRIBE_SUCCESS"
	FrameSend             FrameType = "SEND"
	FrameSendReceipt      FrameType = "SEND_RECEIPT"
	FrameMessage          FrameType = "MESSAGE"
	FrameFlow             FrameType = "FLOW"
	FrameCloseResource    FrameType = "CLOSE_RESOURCE"
	FrameSuccess          FrameType = "SUCCESS"
	FrameError            FrameType = "ERROR"
)

// BatchEntry is one entry of a batched MESSAGE frame: the entry's exact
// payload slice plus its optional per-entry metadata overrides.
type BatchEntry struct {
	Payload []byte            `json:"payload"`
	Meta    message.EntryMeta `json:"meta"`
}

// Frame is the unit of the broker session protocol. One flat structure
// covers every frame type; unused fields stay at their zero value and are
// omitted on the wire.
type Frame struct {
	Type      FrameType `json:"type"`
	RequestID uint64    `json:"request_id,omitempty"`

	// Handshake
	ClientVersion string `json:"client_version,omitempty"`
	ListenerName  string `json:"listener_name,omitempty"`

	// Resource creation and addressing
	Topic        string `json:"topic,omitempty"`
	Subscription string `json:"subscription,omitempty"`
	ProducerName string `json:"producer_name,omitempty"`
	ProducerID   uint64 `json:"producer_id,omitempty"`
	ConsumerID   uint64 `json:"consumer_id,omitempty"`

	// Reader positioning
	StartMessageID *message.MessageID `json:"start_message_id,omitempty"`

	// Partition metadata lookup
	Partitions uint32 `json:"partitions,omitempty"`

	// Publish / delivery
	Metadata        *message.Metadata  `json:"metadata,omitempty"`
	Entries         []BatchEntry       `json:"entries,omitempty"`
	MessageID       *message.MessageID `json:"message_id,omitempty"`
	RedeliveryCount int32              `json:"redelivery_count,omitempty"`
	Permits         uint32             `json:"permits,omitempty"`

	// Error outcome, by closed enumeration name (see errors.ParseResult)
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Codec encodes and decodes frames on a broker transport. The broker's real
// byte layout is owned by the wire-protocol layer; the client only depends
// on this boundary.
//
// Implementations must be safe for one concurrent reader and one concurrent
// writer, which is how Connection drives them.
type Codec interface {
	Encode(w io.Writer, f *Frame) error
	Decode(r io.Reader) (*Frame, error)
}

// maxFrameSize bounds a single decoded frame. Oversized frames indicate a
// corrupt stream and poison the connection.
const maxFrameSize = 16 << 20

// jsonCodec frames JSON-encoded frames with a 4-byte big-endian length
// prefix. It is the default codec; deployments with a binary wire protocol
// install their own Codec.
type jsonCodec struct{}

// NewJSONCodec returns the default length-prefixed JSON frame codec
func NewJSONCodec() Codec {
	return jsonCodec{}
}

func (jsonCodec) Encode(w io.Writer, f *Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode frame %s: %w", f.Type, err)
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func (jsonCodec) Decode(r io.Reader) (*Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	f := &Frame{}
	if err := json.Unmarshal(body, f); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}
