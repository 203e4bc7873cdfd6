// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"fmt"
	"slices"

	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
)

// RecordProtector applies the record protection of one epoch. The record
// layer owns encryption and MAC computation; the epoch table only carries the
// protector so retransmitted records are sealed with the keys they were
// buffered under.
type RecordProtector interface {
	// Protect returns the protected record for header and plaintext content.
	// The returned slice must include the record header.
	Protect(header *recordlayer.Header, content []byte) ([]byte, error)
}

// Epoch holds the protection parameters of one epoch together with the
// number of buffered messages that may still be retransmitted under it.
type Epoch struct {
	ID        uint16
	Protector RecordProtector

	nextSequenceNumber uint64 // uint48
	usage              int
}

// UsageCount returns the number of buffered messages referencing the epoch.
func (e *Epoch) UsageCount() int {
	return e.usage
}

// NextSequenceNumber returns and consumes the next record sequence number
// of this epoch.
func (e *Epoch) NextSequenceNumber() (uint64, error) {
	seq, err := e.peekSequenceNumber()
	if err != nil {
		return 0, err
	}
	e.nextSequenceNumber++

	return seq, nil
}

// peekSequenceNumber returns the next record sequence number without
// consuming it.
func (e *Epoch) peekSequenceNumber() (uint64, error) {
	if e.nextSequenceNumber > recordlayer.MaxSequenceNumber {
		return 0, errSequenceNumberOverflow
	}

	return e.nextSequenceNumber, nil
}

// EpochTable is the arena of epochs known to one connection. It is owned by
// the connection and must not be mutated concurrently.
type EpochTable struct {
	epochs map[uint16]*Epoch
}

// NewEpochTable returns a table holding only the NULL-protected epoch 0.
func NewEpochTable() *EpochTable {
	return &EpochTable{epochs: map[uint16]*Epoch{0: {ID: 0}}}
}

// Add registers a new epoch.
func (t *EpochTable) Add(id uint16, protector RecordProtector) (*Epoch, error) {
	if _, ok := t.epochs[id]; ok {
		return nil, fmt.Errorf("%w: %d", ErrEpochExists, id)
	}
	e := &Epoch{ID: id, Protector: protector}
	t.epochs[id] = e

	return e, nil
}

// Lookup returns the epoch with the given id.
func (t *EpochTable) Lookup(id uint16) (*Epoch, error) {
	e, ok := t.epochs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrEpochNotFound, id)
	}

	return e, nil
}

// Acquire records that one more buffered message depends on epoch id.
func (t *EpochTable) Acquire(id uint16) error {
	e, err := t.Lookup(id)
	if err != nil {
		return err
	}
	e.usage++

	return nil
}

// Release drops one reference taken by Acquire. The count is never stored
// below zero; an unmatched release is reported instead.
func (t *EpochTable) Release(id uint16) error {
	e, err := t.Lookup(id)
	if err != nil {
		return err
	}
	if e.usage == 0 {
		return fmt.Errorf("%w: epoch %d", ErrUsageCountNegative, id)
	}
	e.usage--

	return nil
}

// UsageCount returns the usage count of epoch id.
func (t *EpochTable) UsageCount(id uint16) (int, error) {
	e, err := t.Lookup(id)
	if err != nil {
		return 0, err
	}

	return e.usage, nil
}

// Discard removes an epoch whose keys are no longer needed. Epochs still
// referenced by buffered messages are kept.
func (t *EpochTable) Discard(id uint16) error {
	e, err := t.Lookup(id)
	if err != nil {
		return err
	}
	if e.usage != 0 {
		return fmt.Errorf("%w: epoch %d used by %d messages", ErrEpochInUse, id, e.usage)
	}
	delete(t.epochs, id)

	return nil
}

// IDs returns the registered epoch ids in ascending order.
func (t *EpochTable) IDs() []uint16 {
	ids := make([]uint16, 0, len(t.epochs))
	for id := range t.epochs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	return ids
}
