// SPDX-License-Identifier: MIT
package udp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"pitchtrack/internal/analysis"
	applog "pitchtrack/internal/log"
)

// PacketSize is the length of every pitch packet in bytes.
const PacketSize = 4 + 8 + 4 + 4

// ErrShortPacket is returned by ParsePacket for truncated input.
var ErrShortPacket = errors.New("short pitch packet")

// PacketSender is the transmit side used by Publisher; *Sender implements it.
type PacketSender interface {
	Send(data []byte) error
}

// Packet is a decoded pitch packet.
type Packet struct {
	Sequence  uint32
	Timestamp int64  // Nanoseconds since epoch.
	Window    uint32 // Low 32 bits of the window sequence.
	Frequency float32
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Window            | uint32         | 4            | Window number, low 32b  |
| Frequency         | float32        | 4            | Detected pitch in Hz    |
+-----------------------------------------------------------------------------+

Visual Layout:

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 4 Bytes -->|<-- 4 Bytes -->|
+-------------------+-----------------------+---------------+---------------+
|  Sequence Number  |       Timestamp       |    Window     |   Frequency   |
|      (uint32)     |        (int64)        |   (uint32)    |   (float32)   |
+-------------------+-----------------------+---------------+---------------+
*/

// Publisher periodically sends the newest pitch held by an analysis.Latest
// register. A tick without a new pitch sends nothing.
type Publisher struct {
	sender   PacketSender
	latest   *analysis.Latest
	interval time.Duration

	sequenceNum uint32
	seen        uint64           // Latest.Count at the last send.
	packet      [PacketSize]byte // Reused for every send.
}

// NewPublisher creates a publisher. If the interval is invalid (<= 0), it
// defaults to 16ms (~60Hz).
func NewPublisher(interval time.Duration, sender PacketSender, latest *analysis.Latest) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if latest == nil {
		return nil, fmt.Errorf("UDPPublisher: pitch register cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &Publisher{
		sender:   sender,
		latest:   latest,
		interval: interval,
	}, nil
}

// Run publishes on every tick until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	applog.Infof("UDPPublisher: Publisher goroutine started (Interval: %s)", p.interval)
	for {
		select {
		case <-ctx.Done():
			applog.Infof("UDPPublisher: Publisher goroutine received stop signal.")
			return nil
		case <-ticker.C:
			if _, err := p.Publish(); err != nil {
				applog.Debugf("UDPPublisher: %v", err)
			}
		}
	}
}

// Publish sends the newest pitch if it changed since the last send and
// reports whether a packet went out.
func (p *Publisher) Publish() (bool, error) {
	n := p.latest.Count()
	if n == p.seen {
		return false, nil
	}
	freq, window, ok := p.latest.Load()
	if !ok {
		return false, nil
	}
	p.seen = n
	p.sequenceNum++

	b := p.packet[:]
	binary.BigEndian.PutUint32(b[0:4], p.sequenceNum)
	binary.BigEndian.PutUint64(b[4:12], uint64(time.Now().UnixNano()))
	binary.BigEndian.PutUint32(b[12:16], uint32(window))
	binary.BigEndian.PutUint32(b[16:20], math.Float32bits(float32(freq)))

	if err := p.sender.Send(b); err != nil {
		return false, err
	}
	if applog.Enabled(applog.LevelDebug) {
		applog.Debugf("UDPPublisher: Sent packet %d (window %d, %.2f Hz)", p.sequenceNum, window, freq)
	}
	return true, nil
}

// ParsePacket decodes a packet produced by Publisher.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	return Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Window:    binary.BigEndian.Uint32(b[12:16]),
		Frequency: math.Float32frombits(binary.BigEndian.Uint32(b[16:20])),
	}, nil
}
