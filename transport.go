// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"context"
	"time"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
)

// RecordWriter queues and flushes outbound records.
type RecordWriter interface {
	// WriteRecord queues data as one record of type ct protected under epoch.
	// typ is the handshake type of the record and is meaningless for other
	// content types. It returns the number of content bytes accepted.
	WriteRecord(ct protocol.ContentType, typ handshake.Type, epoch uint16, data []byte) (int, error)

	// Flush writes every queued record to the network.
	Flush() error
}

// Receiver waits for signs of peer progress.
type Receiver interface {
	// CheckRecv waits up to timeout for incoming data and copies up to
	// len(buf) leading bytes of it into buf; buf may be nil. The data stays
	// queued for the record layer, but every datagram is reported by only
	// one CheckRecv call. It returns ErrRecvTimeout (or any net.Error
	// reporting Timeout) when nothing arrived, and ErrWouldBlock when timeout
	// is zero and nothing is available.
	CheckRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, error)
}

// Transport is the datagram channel a Transmitter drives.
type Transport interface {
	RecordWriter
	Receiver
}
