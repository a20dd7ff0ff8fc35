// SPDX-License-Identifier: MIT
package udp

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pitchtrack/internal/analysis"
)

type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (r *recordingSender) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.packets = append(r.packets, append([]byte(nil), data...))
	return nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.packets)
}

func TestPublishOnlyNewPitches(t *testing.T) {
	latest := analysis.NewLatest()
	rs := &recordingSender{}
	p, err := NewPublisher(time.Millisecond, rs, latest)
	require.NoError(t, err)

	sent, err := p.Publish()
	require.NoError(t, err)
	assert.False(t, sent, "nothing stored yet")

	latest.Store(261.63, 5)
	sent, err = p.Publish()
	require.NoError(t, err)
	assert.True(t, sent)

	sent, _ = p.Publish()
	assert.False(t, sent, "unchanged pitch is not resent")

	latest.Store(329.63, 6)
	sent, _ = p.Publish()
	assert.True(t, sent)

	require.Equal(t, 2, rs.count())
	first, err := ParsePacket(rs.packets[0])
	require.NoError(t, err)
	assert.EqualValues(t, 1, first.Sequence)
	assert.EqualValues(t, 5, first.Window)
	assert.InDelta(t, 261.63, first.Frequency, 1e-3)
	assert.NotZero(t, first.Timestamp)

	second, err := ParsePacket(rs.packets[1])
	require.NoError(t, err)
	assert.EqualValues(t, 2, second.Sequence)
	assert.EqualValues(t, 6, second.Window)
}

func TestPublishSendError(t *testing.T) {
	latest := analysis.NewLatest()
	rs := &recordingSender{err: errors.New("network down")}
	p, err := NewPublisher(time.Millisecond, rs, latest)
	require.NoError(t, err)

	latest.Store(440, 1)
	sent, err := p.Publish()
	assert.False(t, sent)
	assert.Error(t, err)
}

func TestNewPublisherValidation(t *testing.T) {
	_, err := NewPublisher(time.Second, nil, analysis.NewLatest())
	assert.Error(t, err)
	_, err = NewPublisher(time.Second, &recordingSender{}, nil)
	assert.Error(t, err)

	p, err := NewPublisher(0, &recordingSender{}, analysis.NewLatest())
	require.NoError(t, err)
	assert.Equal(t, 16*time.Millisecond, p.interval)
}

func TestParsePacketShort(t *testing.T) {
	_, err := ParsePacket(make([]byte, PacketSize-1))
	assert.ErrorIs(t, err, ErrShortPacket)
}

func TestPublisherOverUDP(t *testing.T) {
	listener, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	require.NoError(t, err)
	defer sender.Close()

	latest := analysis.NewLatest()
	p, err := NewPublisher(5*time.Millisecond, sender, latest)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	latest.Store(440, 42)

	buf := make([]byte, 64)
	require.NoError(t, listener.SetReadDeadline(time.Now().Add(2*time.Second)))
	n, _, err := listener.ReadFrom(buf)
	require.NoError(t, err)
	assert.Equal(t, PacketSize, n)

	pkt, err := ParsePacket(buf[:n])
	require.NoError(t, err)
	assert.EqualValues(t, 42, pkt.Window)
	assert.Equal(t, float32(440), pkt.Frequency)

	cancel()
	assert.NoError(t, <-done)
}

func TestSenderClose(t *testing.T) {
	sender, err := NewSender("127.0.0.1:9")
	require.NoError(t, err)
	require.NoError(t, sender.Close())
	require.NoError(t, sender.Close())
	assert.ErrorIs(t, sender.Send([]byte{1}), ErrSenderClosed)

	_, err = NewSender("not an address")
	assert.Error(t, err)
}

func TestPublishHotPath(t *testing.T) {
	latest := analysis.NewLatest()
	p, err := NewPublisher(time.Millisecond, discard{}, latest)
	require.NoError(t, err)

	allocs := testing.AllocsPerRun(100, func() {
		latest.Store(440, 1)
		_, _ = p.Publish()
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in Publish, got %.1f", allocs)
	}
}

type discard struct{}

func (discard) Send([]byte) error { return nil }
