package message

import (
	"fmt"
	"math"
)

// MessageID is the broker-assigned, totally ordered identity of a message.
// The zero value is not meaningful; use InvalidMessageID for the unbound
// sentinel. Two Message handles are equal exactly when their MessageIDs are.
type MessageID struct {
	LedgerID   int64 `json:"ledger_id"`
	EntryID    int64 `json:"entry_id"`
	BatchIndex int32 `json:"batch_index"`
	Partition  int32 `json:"partition"`
}

// InvalidMessageID returns the sentinel identity of a message that has no
// broker-assigned id bound yet.
func InvalidMessageID() MessageID {
	return MessageID{LedgerID: -1, EntryID: -1, BatchIndex: -1, Partition: -1}
}

// EarliestMessageID returns the id used to start reading from the first
// available message in a topic.
func EarliestMessageID() MessageID {
	return MessageID{LedgerID: -1, EntryID: -1, BatchIndex: -1, Partition: -1}
}

// LatestMessageID returns the id used to start reading from the next
// message published after the reader is created.
func LatestMessageID() MessageID {
	return MessageID{LedgerID: math.MaxInt64, EntryID: math.MaxInt64, BatchIndex: -1, Partition: -1}
}

// Valid reports whether the id was assigned by a broker (or is the Latest
// sentinel); the unbound/earliest sentinel is not valid.
func (id MessageID) Valid() bool {
	return id.LedgerID >= 0 && id.EntryID >= 0
}

// Compare returns -1, 0 or 1 ordering ids by ledger, entry, then batch index.
// Partition is not part of the ordering; ids from different partitions are
// only meaningfully compared within one partition's stream.
func (id MessageID) Compare(other MessageID) int {
	switch {
	case id.LedgerID < other.LedgerID:
		return -1
	case id.LedgerID > other.LedgerID:
		return 1
	}
	switch {
	case id.EntryID < other.EntryID:
		return -1
	case id.EntryID > other.EntryID:
		return 1
	}
	switch {
	case id.BatchIndex < other.BatchIndex:
		return -1
	case id.BatchIndex > other.BatchIndex:
		return 1
	}
	return 0
}

// Equals reports whether two ids are identical, including partition.
func (id MessageID) Equals(other MessageID) bool {
	return id == other
}

// String returns the canonical "(ledger,entry,batchIndex,partition)" form
func (id MessageID) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", id.LedgerID, id.EntryID, id.BatchIndex, id.Partition)
}
