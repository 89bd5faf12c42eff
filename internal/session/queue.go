package session

import (
	"sync"

	"github.com/bancho-server/internal/packet"
)

// Queue buffers encoded packets until the client's next poll
type Queue struct {
	mu  sync.Mutex
	buf []byte
	n   int
}

// Enqueue appends the wire form of each packet
func (q *Queue) Enqueue(packets ...packet.Packet) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range packets {
		w := packet.NewWriter()
		p.EncodeTo(w)
		q.buf = append(q.buf, w.Bytes()...)
		q.n++
	}
}

// EnqueueRaw appends already encoded packets
func (q *Queue) EnqueueRaw(wire []byte, count int) {
	q.mu.Lock()
	q.buf = append(q.buf, wire...)
	q.n += count
	q.mu.Unlock()
}

// Drain returns everything queued and empties the queue in one step
func (q *Queue) Drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.buf
	q.buf = nil
	q.n = 0
	return out
}

// Len returns the number of queued packets
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.n
}
