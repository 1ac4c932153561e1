// Package testutil provides an in-process stub broker speaking the frame
// protocol, with scriptable failure behaviors for session-layer tests.
package testutil

import (
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/pulsekit/broker"
	"github.com/c360/pulsekit/message"
)

// StubBroker is a minimal in-process broker for tests. It accepts frame
// protocol connections, answers partition lookups and resource creates,
// and loops published messages back to matching subscribers, so a producer
// and a consumer on the same topic form a complete round trip.
//
// Failure behaviors are scriptable per instance through the Set methods,
// which are safe to call while the broker is serving: a black-holed broker
// accepts sockets and never answers, a broker with a required listener
// rejects lookups from clients that did not advertise it, a broker that
// swallows sends never acknowledges a publish.
type StubBroker struct {
	listener net.Listener
	codec    broker.Codec

	blackHole    atomic.Bool
	swallowSends atomic.Bool

	mu               sync.Mutex
	requiredListener string
	connectReject    string
	connectReason    string
	partitions       map[string]uint32
	subscribers      []*stubSubscriber
	versions         []string
	conns            []net.Conn

	producerSeq atomic.Uint64
	consumerSeq atomic.Uint64
	entrySeq    atomic.Int64

	closed atomic.Bool
	wg     sync.WaitGroup
}

// stubSubscriber is one active subscription on one client connection
type stubSubscriber struct {
	topic      string
	consumerID uint64
	conn       net.Conn
	writeMu    *sync.Mutex
}

// NewStubBroker starts a stub broker on an ephemeral localhost port
func NewStubBroker() (*StubBroker, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	b := &StubBroker{
		listener:   ln,
		codec:      broker.NewJSONCodec(),
		partitions: make(map[string]uint32),
	}
	b.wg.Add(1)
	go b.acceptLoop()
	return b, nil
}

// Addr returns the broker's listen address
func (b *StubBroker) Addr() string {
	return b.listener.Addr().String()
}

// ServiceURL returns a service URL pointing at this broker
func (b *StubBroker) ServiceURL() string {
	return "pulse://" + b.Addr()
}

// SetPartitions scripts the partition count reported for topic
func (b *StubBroker) SetPartitions(topic string, n uint32) {
	b.mu.Lock()
	b.partitions[topic] = n
	b.mu.Unlock()
}

// SetBlackHole makes new connections swallow every byte without responding,
// so client connect and operation timers fire.
func (b *StubBroker) SetBlackHole(v bool) {
	b.blackHole.Store(v)
}

// SetSwallowSends makes the broker accept SEND frames without ever
// acknowledging them, so publishes block until a client-side timer fires.
func (b *StubBroker) SetSwallowSends(v bool) {
	b.swallowSends.Store(v)
}

// SetRequiredListener makes lookups and creates from connections that
// advertised a different listener name fail with ServiceUnitNotReady.
// Empty disables the check.
func (b *StubBroker) SetRequiredListener(name string) {
	b.mu.Lock()
	b.requiredListener = name
	b.mu.Unlock()
}

// SetConnectReject makes the handshake answer with an ERROR frame naming
// the given outcome instead of CONNECTED. Empty disables the rejection.
func (b *StubBroker) SetConnectReject(outcome, reason string) {
	b.mu.Lock()
	b.connectReject = outcome
	b.connectReason = reason
	b.mu.Unlock()
}

// ClientVersions returns the version strings received in handshakes
func (b *StubBroker) ClientVersions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.versions))
	copy(out, b.versions)
	return out
}

// Close stops accepting and severs every open connection
func (b *StubBroker) Close() {
	if !b.closed.CompareAndSwap(false, true) {
		return
	}
	b.listener.Close()
	b.mu.Lock()
	for _, conn := range b.conns {
		conn.Close()
	}
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *StubBroker) acceptLoop() {
	defer b.wg.Done()
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}
		b.mu.Lock()
		b.conns = append(b.conns, conn)
		b.mu.Unlock()

		b.wg.Add(1)
		go b.serve(conn)
	}
}

func (b *StubBroker) serve(conn net.Conn) {
	defer b.wg.Done()
	defer conn.Close()

	if b.blackHole.Load() {
		io.Copy(io.Discard, conn)
		return
	}

	writeMu := &sync.Mutex{}
	write := func(f *broker.Frame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		b.codec.Encode(conn, f)
	}

	// Handshake
	f, err := b.codec.Decode(conn)
	if err != nil || f.Type != broker.FrameConnect {
		return
	}
	advertised := f.ListenerName
	b.mu.Lock()
	b.versions = append(b.versions, f.ClientVersion)
	listenerOK := b.requiredListener == "" || advertised == b.requiredListener
	reject, reason := b.connectReject, b.connectReason
	b.mu.Unlock()
	if reject != "" {
		write(&broker.Frame{
			Type:      broker.FrameError,
			RequestID: f.RequestID,
			Error:     reject,
			Reason:    reason,
		})
		return
	}
	write(&broker.Frame{Type: broker.FrameConnected})

	for {
		f, err := b.codec.Decode(conn)
		if err != nil {
			b.dropSubscribers(conn)
			return
		}

		if !listenerOK {
			switch f.Type {
			case broker.FrameLookup, broker.FrameCreateProducer, broker.FrameSubscribe:
				write(&broker.Frame{
					Type:      broker.FrameError,
					RequestID: f.RequestID,
					Error:     "ServiceUnitNotReady",
					Reason:    "listener " + advertised + " not provisioned",
				})
				continue
			}
		}

		switch f.Type {
		case broker.FrameLookup:
			b.mu.Lock()
			n := b.partitions[f.Topic]
			b.mu.Unlock()
			write(&broker.Frame{
				Type:       broker.FrameLookupResponse,
				RequestID:  f.RequestID,
				Topic:      f.Topic,
				Partitions: n,
			})

		case broker.FrameCreateProducer:
			write(&broker.Frame{
				Type:         broker.FrameProducerSuccess,
				RequestID:    f.RequestID,
				ProducerID:   b.producerSeq.Add(1),
				ProducerName: f.ProducerName,
			})

		case broker.FrameSubscribe:
			id := b.consumerSeq.Add(1)
			b.mu.Lock()
			b.subscribers = append(b.subscribers, &stubSubscriber{
				topic:      f.Topic,
				consumerID: id,
				conn:       conn,
				writeMu:    writeMu,
			})
			b.mu.Unlock()
			write(&broker.Frame{
				Type:       broker.FrameSubscribeSuccess,
				RequestID:  f.RequestID,
				ConsumerID: id,
			})

		case broker.FrameSend:
			if b.swallowSends.Load() {
				continue
			}
			id := message.MessageID{
				LedgerID:   1,
				EntryID:    b.entrySeq.Add(1),
				BatchIndex: -1,
				Partition:  -1,
			}
			write(&broker.Frame{
				Type:      broker.FrameSendReceipt,
				RequestID: f.RequestID,
				MessageID: &id,
			})
			b.deliver(f, id)

		case broker.FrameFlow:
			// Permits are accepted silently

		case broker.FrameCloseResource:
			if f.ConsumerID != 0 {
				b.removeSubscriber(f.ConsumerID)
			}
			write(&broker.Frame{Type: broker.FrameSuccess, RequestID: f.RequestID})

		default:
			write(&broker.Frame{
				Type:      broker.FrameError,
				RequestID: f.RequestID,
				Error:     "UnknownError",
				Reason:    "unsupported frame " + string(f.Type),
			})
		}
	}
}

// deliver loops a published frame back to every subscriber of its topic
func (b *StubBroker) deliver(f *broker.Frame, id message.MessageID) {
	b.mu.Lock()
	subs := make([]*stubSubscriber, 0, len(b.subscribers))
	for _, s := range b.subscribers {
		if s.topic == f.Topic {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	meta := f.Metadata
	if meta != nil && meta.PublishTime.IsZero() {
		stamped := meta.Clone()
		stamped.PublishTime = time.Now()
		meta = &stamped
	}

	for _, s := range subs {
		s.writeMu.Lock()
		b.codec.Encode(s.conn, &broker.Frame{
			Type:       broker.FrameMessage,
			ConsumerID: s.consumerID,
			Topic:      f.Topic,
			MessageID:  &id,
			Metadata:   meta,
			Entries:    f.Entries,
		})
		s.writeMu.Unlock()
	}
}

func (b *StubBroker) removeSubscriber(consumerID uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subscribers[:0]
	for _, s := range b.subscribers {
		if s.consumerID != consumerID {
			kept = append(kept, s)
		}
	}
	b.subscribers = kept
}

func (b *StubBroker) dropSubscribers(conn net.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.subscribers[:0]
	for _, s := range b.subscribers {
		if s.conn != conn {
			kept = append(kept, s)
		}
	}
	b.subscribers = kept
}
