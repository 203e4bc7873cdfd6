// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"sort"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
)

const (
	// 2 megabytes.
	fragmentBufferMaxSize  = 2000000
	fragmentBufferMaxCount = 1000
)

// span is a covered byte range [start, end) of a message body.
type span struct {
	start, end uint32
}

type partialMessage struct {
	typ     handshake.Type
	epoch   uint16
	body    []byte
	covered []span // sorted, non-overlapping, non-adjacent

	receivedLength uint32
	fragmentCount  int
}

// cover marks [start, end) received and returns the number of newly covered bytes.
func (m *partialMessage) cover(start, end uint32) uint32 {
	if start >= end {
		return 0
	}

	i := sort.Search(len(m.covered), func(i int) bool { return m.covered[i].end >= start })
	merged := span{start: start, end: end}
	var already uint32
	j := i
	for ; j < len(m.covered) && m.covered[j].start <= end; j++ {
		s := m.covered[j]
		already += min(s.end, end) - max(s.start, start)
		merged.start = min(merged.start, s.start)
		merged.end = max(merged.end, s.end)
	}

	m.covered = append(m.covered[:i], append([]span{merged}, m.covered[j:]...)...)
	added := (end - start) - already
	m.receivedLength += added

	return added
}

func (m *partialMessage) complete() bool {
	return m.receivedLength == uint32(len(m.body)) //nolint:gosec // bounded by fragmentBufferMaxSize
}

// FragmentBuffer reassembles handshake messages from the fragments a peer
// sends, in message sequence order. Fragments may arrive in any order,
// overlap or repeat.
type FragmentBuffer struct {
	cache map[uint16]*partialMessage

	currentMessageSequenceNumber uint16

	totalBufferSize    int
	totalFragmentCount int
}

// NewFragmentBuffer returns an empty FragmentBuffer expecting message sequence 0.
func NewFragmentBuffer() *FragmentBuffer {
	return &FragmentBuffer{cache: map[uint16]*partialMessage{}}
}

// Push stores the handshake fragments carried by one record. It reports
// whether the record was a handshake record; other records are left to the
// caller. Fragments of messages already popped are dropped. An error is fatal
// to the connection.
func (f *FragmentBuffer) Push(record []byte) (bool, error) { //nolint:cyclop
	var hdr recordlayer.Header
	if err := hdr.Unmarshal(record); err != nil {
		return false, err
	}
	if hdr.ContentType != protocol.ContentTypeHandshake {
		return false, nil
	}

	content := record[recordlayer.FixedHeaderSize:]
	if int(hdr.ContentLen) < len(content) {
		content = content[:hdr.ContentLen]
	}

	for len(content) != 0 {
		var hsHdr handshake.Header
		if err := hsHdr.Unmarshal(content); err != nil {
			return true, err
		}
		end := handshake.HeaderLength + int(hsHdr.FragmentLength)
		if end > len(content) {
			return true, errBufferTooSmall
		}
		payload := content[handshake.HeaderLength:end]
		content = content[end:]

		if hsHdr.MessageSequence < f.currentMessageSequenceNumber {
			continue
		}
		if hsHdr.Length > fragmentBufferMaxSize {
			return true, errFragmentBufferOverflow
		}
		if hsHdr.FragmentOffset > hsHdr.Length || hsHdr.FragmentLength > hsHdr.Length-hsHdr.FragmentOffset {
			continue
		}

		msg, ok := f.cache[hsHdr.MessageSequence]
		if !ok {
			if f.totalBufferSize+int(hsHdr.Length) > fragmentBufferMaxSize {
				return true, errFragmentBufferOverflow
			}
			msg = &partialMessage{typ: hsHdr.Type, epoch: hdr.Epoch, body: make([]byte, hsHdr.Length)}
			f.cache[hsHdr.MessageSequence] = msg
			f.totalBufferSize += int(hsHdr.Length)
		} else if msg.typ != hsHdr.Type || uint32(len(msg.body)) != hsHdr.Length { //nolint:gosec
			return true, errInconsistentFragment
		}
		if msg.epoch != hdr.Epoch || msg.complete() {
			continue
		}

		if f.totalFragmentCount+1 > fragmentBufferMaxCount {
			return true, errFragmentBufferOverflow
		}
		start := hsHdr.FragmentOffset
		if msg.cover(start, start+hsHdr.FragmentLength) == 0 {
			continue
		}
		copy(msg.body[start:], payload)
		msg.fragmentCount++
		f.totalFragmentCount++
	}

	return true, nil
}

// Pop returns the next message in sequence once all of its bytes arrived,
// or nil.
func (f *FragmentBuffer) Pop() *Message {
	msg, ok := f.cache[f.currentMessageSequenceNumber]
	if !ok || !msg.complete() {
		return nil
	}

	out := &Message{
		Type:     msg.typ,
		Sequence: f.currentMessageSequenceNumber,
		Epoch:    msg.epoch,
		Body:     msg.body,
	}

	f.totalBufferSize -= len(msg.body)
	f.totalFragmentCount -= msg.fragmentCount
	delete(f.cache, f.currentMessageSequenceNumber)
	f.currentMessageSequenceNumber++

	return out
}

// NextSequence returns the message sequence number Pop returns next.
func (f *FragmentBuffer) NextSequence() uint16 {
	return f.currentMessageSequenceNumber
}
