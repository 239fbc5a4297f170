package transport

import (
	"context"
	"sync"
)

// memPublication and memSubscription share a single backing log so the
// in-memory Transport can model an arbitrary number of consumer images
// observing one ordered byte stream.
type memChannel struct {
	mu     sync.Mutex
	frames [][]byte
	closed bool
}

func (c *memChannel) offer(data []byte) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return int64(ResultClosed)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.frames = append(c.frames, cp)
	return int64(len(c.frames))
}

func (c *memChannel) frameAt(i int) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.frames) {
		return nil, false
	}
	return c.frames[i], true
}

func (c *memChannel) length() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

type memPublication struct{ ch *memChannel }

func (p *memPublication) Offer(data []byte) int64 { return p.ch.offer(data) }
func (p *memPublication) Position() int64         { return int64(p.ch.length()) }
func (p *memPublication) IsConnected() bool        { return !p.ch.closed }
func (p *memPublication) Close() error {
	p.ch.mu.Lock()
	defer p.ch.mu.Unlock()
	p.ch.closed = true
	return nil
}

type memImage struct {
	ch       *memChannel
	position int
}

func (i *memImage) Position() int64     { return int64(i.position) }
func (i *memImage) JoinPosition() int64 { return 0 }
func (i *memImage) EndPosition() int64  { return int64(i.ch.length()) }
func (i *memImage) IsClosed() bool      { return i.ch.closed }

func (i *memImage) Poll(handler FragmentHandler, fragmentLimit int) int {
	delivered := 0
	for delivered < fragmentLimit {
		frame, ok := i.ch.frameAt(i.position)
		if !ok {
			break
		}
		i.position++
		delivered++
		switch handler(frame, int64(i.position)) {
		case FragmentAbort, FragmentBreak:
			return delivered
		}
	}
	return delivered
}

type memSubscription struct{ images []Image }

func (s *memSubscription) Images() []Image { return s.images }
func (s *memSubscription) Close() error    { return nil }

// MemoryTransport routes channel+streamId pairs to shared in-process
// buffers, giving every AddSubscription caller its own Image cursor over
// the same stream — enough to exercise the full election/replication
// protocol in tests without a network.
type MemoryTransport struct {
	mu       sync.Mutex
	channels map[string]*memChannel
}

// NewMemoryTransport builds an empty in-memory transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{channels: make(map[string]*memChannel)}
}

func key(channel Endpoint, streamId int32) string {
	return string(channel) + "#" + itoa(streamId)
}

func itoa(n int32) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [12]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (t *MemoryTransport) channelFor(channel Endpoint, streamId int32) *memChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(channel, streamId)
	c, ok := t.channels[k]
	if !ok {
		c = &memChannel{}
		t.channels[k] = c
	}
	return c
}

func (t *MemoryTransport) AddPublication(_ context.Context, channel Endpoint, streamId int32) (Publication, error) {
	return &memPublication{ch: t.channelFor(channel, streamId)}, nil
}

func (t *MemoryTransport) AddSubscription(_ context.Context, channel Endpoint, streamId int32) (Subscription, error) {
	return &memSubscription{images: []Image{&memImage{ch: t.channelFor(channel, streamId)}}}, nil
}
