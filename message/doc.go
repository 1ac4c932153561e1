// Package message defines the logical message model of the pulsekit client:
// broker-assigned message identities, batch metadata, and the reconstruction
// of individual application messages out of broker-delivered batches.
//
// # Batch Reconstruction
//
// Brokers deliver batches: one metadata envelope (Metadata) shared by N
// entries, each entry carrying its own payload slice and an optional
// per-entry override (EntryMeta). FromBatchEntry merges the two into one
// immutable Message with exact replace/clear semantics:
//
//   - the entry's properties replace the envelope's entirely, even when empty
//   - partition key, ordering key, event time and sequence id come from the
//     entry when present and are cleared otherwise
//
// This guarantees a decoded entry never observes attributes that belong to
// its batch neighbors.
//
// # Identity
//
// MessageID is totally ordered (ledger, entry, batch index). A message
// built producer-side starts unbound and reports the invalid sentinel until
// the broker acknowledgment binds a concrete id, exactly once. Message
// equality is defined as identity equality.
//
// All Message accessors are nil-safe and return defined empty values, so
// handling a zero or unbound message is always well-defined.
package message
