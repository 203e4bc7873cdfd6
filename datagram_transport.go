// SPDX-FileCopyrightText: 2023 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package dtlsflight

import (
	"context"
	"net"
	"time"

	"github.com/pion/dtlsflight/pkg/protocol"
	"github.com/pion/dtlsflight/pkg/protocol/handshake"
	"github.com/pion/dtlsflight/pkg/protocol/recordlayer"
	"github.com/pion/logging"
)

const (
	// defaultDatagramSize is the largest datagram the transport writes unless configured.
	defaultDatagramSize = 1200
	// receiveMTU is the largest datagram the transport reads.
	receiveMTU = 8192
	// nonBlockingPoll is how long a zero-timeout CheckRecv lets the socket
	// deliver already queued data. A read deadline in the past fails before
	// the socket is read at all.
	nonBlockingPoll = time.Millisecond
)

// DatagramTransport frames records for a datagram net.Conn. Records written
// between two flushes are packed into as few datagrams as the datagram size
// allows.
type DatagramTransport struct {
	conn   net.Conn
	epochs *EpochTable
	cfg    *config
	log    logging.LeveledLogger

	pending  [][]byte // framed records awaiting Flush
	received [][]byte // datagrams read by CheckRecv awaiting ReadDatagram
	readBuf  []byte
}

// NewDatagramTransport returns a transport writing records protected with the
// epochs of epochs to conn.
func NewDatagramTransport(conn net.Conn, epochs *EpochTable, opts ...TransportOption) (*DatagramTransport, error) {
	if conn == nil {
		return nil, errNilConn
	}
	if epochs == nil {
		return nil, errNilEpochTable
	}

	cfg := &config{}
	cfg.applyDefaults()
	for _, opt := range opts {
		if err := opt.applyTransport(cfg); err != nil {
			return nil, err
		}
	}

	return &DatagramTransport{
		conn:    conn,
		epochs:  epochs,
		cfg:     cfg,
		log:     cfg.loggerFactory.NewLogger("dtls"),
		readBuf: make([]byte, receiveMTU),
	}, nil
}

// WriteRecord frames data as a record of epoch and queues it until Flush.
func (d *DatagramTransport) WriteRecord(
	ct protocol.ContentType, _ handshake.Type, epochID uint16, data []byte,
) (int, error) {
	epoch, err := d.epochs.Lookup(epochID)
	if err != nil {
		return 0, err
	}
	seq, err := epoch.peekSequenceNumber()
	if err != nil {
		return 0, err
	}

	hdr := &recordlayer.Header{
		ContentType:    ct,
		Version:        d.cfg.version,
		Epoch:          epochID,
		SequenceNumber: seq,
	}

	var raw []byte
	if epoch.Protector != nil {
		raw, err = epoch.Protector.Protect(hdr, data)
	} else {
		raw, err = hdr.Seal(data)
	}
	if err != nil {
		return 0, err
	}
	// The sequence number is only used up by a record that was sealed.
	epoch.nextSequenceNumber++
	d.pending = append(d.pending, raw)

	return len(data), nil
}

// Flush writes the queued records. The queue is emptied even when a write fails.
func (d *DatagramTransport) Flush() error {
	datagrams := compactRawPackets(d.pending, d.cfg.datagramSize)
	d.pending = nil

	for _, datagram := range datagrams {
		d.log.Tracef("[transport] -> datagram (length: %d)", len(datagram))
		if _, err := d.conn.Write(datagram); err != nil {
			return netError(err)
		}
	}

	return nil
}

// CheckRecv waits up to timeout for a new datagram and copies its leading
// bytes into buf. The datagram stays available to ReadDatagram; datagrams
// already queued are not reported again.
//
// A zero timeout polls the socket for nonBlockingPoll.
func (d *DatagramTransport) CheckRecv(ctx context.Context, buf []byte, timeout time.Duration) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	wait := timeout
	if wait == 0 {
		wait = nonBlockingPoll
	}
	deadline := time.Now().Add(wait)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := d.conn.SetReadDeadline(deadline); err != nil {
		return 0, netError(err)
	}
	defer func() {
		_ = d.conn.SetReadDeadline(time.Time{})
	}()

	n, err := d.conn.Read(d.readBuf)
	if err != nil {
		switch {
		case !isRecvTimeout(err):
			return 0, netError(err)
		case timeout == 0:
			return 0, ErrWouldBlock
		default:
			return 0, ErrRecvTimeout
		}
	}

	datagram := append([]byte{}, d.readBuf[:n]...)
	d.received = append(d.received, datagram)
	d.log.Tracef("[transport] <- datagram (length: %d)", n)

	return copy(buf, datagram), nil
}

// ReadDatagram pops the oldest datagram received by CheckRecv.
func (d *DatagramTransport) ReadDatagram() ([]byte, bool) {
	if len(d.received) == 0 {
		return nil, false
	}
	datagram := d.received[0]
	d.received = d.received[1:]

	return datagram, true
}

// Close closes the underlying conn.
func (d *DatagramTransport) Close() error {
	return d.conn.Close()
}

// compactRawPackets concatenates records into datagrams of at most
// maxSize bytes. A record larger than maxSize is sent on its own.
func compactRawPackets(rawPackets [][]byte, maxSize int) [][]byte {
	if len(rawPackets) == 0 {
		return nil
	}

	combinedRawPackets := make([][]byte, 0)
	currentCombinedRawPacket := make([]byte, 0)

	for _, rawPacket := range rawPackets {
		if len(currentCombinedRawPacket) > 0 && len(currentCombinedRawPacket)+len(rawPacket) > maxSize {
			combinedRawPackets = append(combinedRawPackets, currentCombinedRawPacket)
			currentCombinedRawPacket = []byte{}
		}
		currentCombinedRawPacket = append(currentCombinedRawPacket, rawPacket...)
	}

	return append(combinedRawPackets, currentCombinedRawPacket)
}
