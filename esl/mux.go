package esl

import (
	"net"
	"sync"
	"time"

	"github.com/mjarosz/goesl/internal/logger"
)

// reply is what the receive loop hands back to a waiting sender: either a
// parsed command/reply or api/response envelope, or a terminal error if the
// slot was never fulfilled (timeout, or the connection closed first).
type reply struct {
	contentType string
	header      map[string]string
	body        []byte
	err         error
}

// mux is the per-connection I/O multiplexer: it serializes outgoing frames,
// matches each incoming response to the oldest outstanding request in FIFO
// order, and fans events out to a bounded channel for the dispatch goroutine
// to drain.
type mux struct {
	conn net.Conn
	log  *logger.Logger

	mu      sync.Mutex // guards write+enqueue atomically, and pending/closeErr
	pending []chan *reply
	closeErr error

	events chan *Event

	closeOnce sync.Once
	closedCh  chan struct{}
	onClose   func()
}

func newMux(conn net.Conn, incomingBufferSize int, log *logger.Logger, onClose func()) *mux {
	if incomingBufferSize <= 0 {
		incomingBufferSize = DefaultIncomingBufferSize
	}
	return &mux{
		conn:     conn,
		log:      log,
		events:   make(chan *Event, incomingBufferSize),
		closedCh: make(chan struct{}),
		onClose:  onClose,
	}
}

func (m *mux) isClosed() bool {
	select {
	case <-m.closedCh:
		return true
	default:
		return false
	}
}

// send writes a frame and allocates a response slot for it, atomically under
// mu, so the wire FIFO and the slot FIFO can never disagree under
// concurrent callers.
func (m *mux) send(line string, headers map[string]string, body []byte) (<-chan *reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.isClosed() {
		return nil, ErrTransportClosed
	}

	frame := encodeCommand(line, headers, body)
	if _, err := m.conn.Write(frame); err != nil {
		return nil, err
	}

	ch := make(chan *reply, 1)
	m.pending = append(m.pending, ch)
	return ch, nil
}

// sendSync blocks for a reply or until timeout elapses. On timeout, the
// connection is poisoned and closed rather than leaving the slot alive.
func (m *mux) sendSync(line string, headers map[string]string, body []byte, timeout time.Duration) (*reply, error) {
	ch, err := m.send(line, headers, body)
	if err != nil {
		return nil, err
	}
	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r, nil
	case <-time.After(timeout):
		m.poisonAndClose()
		return nil, ErrTimeout
	}
}

// fulfil wakes the oldest outstanding waiter with r. Called by the receive
// loop for command/reply and api/response envelopes.
func (m *mux) fulfil(r *reply) {
	m.mu.Lock()
	if len(m.pending) == 0 {
		m.mu.Unlock()
		m.log.Warning("reply with no outstanding request, dropping: %v", r)
		return
	}
	ch := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()
	ch <- r
}

// enqueueEvent pushes an event onto the bounded event channel. When full,
// the oldest queued event is dropped (logged) rather than blocking the
// receive goroutine.
func (m *mux) enqueueEvent(ev *Event) {
	select {
	case m.events <- ev:
		return
	default:
	}
	select {
	case <-m.events:
		m.log.Warning("event queue full, dropping oldest queued event")
	default:
	}
	select {
	case m.events <- ev:
	default:
		m.log.Warning("event queue still full after drop, dropping incoming event")
	}
}

// poisonAndClose closes the connection after a sendSync timeout, failing any
// other in-flight waiters with ErrConnectionPoisoned since a subsequent
// reply for the timed-out slot would otherwise misalign the FIFO.
func (m *mux) poisonAndClose() {
	m.closeWithErr(ErrConnectionPoisoned)
}

// closeWithErr closes the connection, recording err as the reason every
// outstanding waiter observes. Sends made after the close fail with
// ErrTransportClosed.
func (m *mux) closeWithErr(err error) {
	m.mu.Lock()
	if m.closeErr == nil {
		m.closeErr = err
	}
	m.mu.Unlock()
	m.close()
}

// close idempotently tears the connection down: fails all outstanding
// waiters, closes the event channel, closes the transport, fires the
// closed-latch exactly once, and invokes onClose exactly once (recovering
// any panic it raises).
func (m *mux) close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		if m.closeErr == nil {
			m.closeErr = ErrTransportClosed
		}
		pending := m.pending
		m.pending = nil
		closeErr := m.closeErr
		// Close the latch before unlocking: send() checks isClosed() under
		// the same mu, so once this unlocks, every send() either ran before
		// (its channel is in pending, already drained below) or observes
		// closedCh closed and never appends a slot nothing will fulfil.
		close(m.closedCh)
		m.mu.Unlock()

		for _, ch := range pending {
			ch <- &reply{err: closeErr}
		}

		close(m.events)
		_ = m.conn.Close()

		if m.onClose != nil {
			func() {
				defer func() {
					if r := recover(); r != nil {
						m.log.Warning("on-close callback panicked: %v", r)
					}
				}()
				m.onClose()
			}()
		}
	})
}
