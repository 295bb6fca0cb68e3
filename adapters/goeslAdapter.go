package adapters

import (
	"errors"

	"github.com/mjarosz/goesl/esl"
	"github.com/mjarosz/goesl/fs"
)

// EslWrapper adapts a live *esl.Connection to fs.IEsl. esl dispatches events
// to bound handlers rather than exposing a blocking read, so EslWrapper
// subscribes a catch-all handler once and buffers what it delivers into a
// channel, giving eslsession the synchronous ReadMessage loop it expects.
type EslWrapper struct {
	conn   *esl.Connection
	events chan fs.IEvent
}

// NewEslWrapper subscribes to every event on conn. conn must not have had
// other "ALL"-keyed handlers bound already.
func NewEslWrapper(conn *esl.Connection) (*EslWrapper, error) {
	w := &EslWrapper{
		conn:   conn,
		events: make(chan fs.IEvent, 256),
	}
	if err := conn.ReqEvent(w.onEvent, "ALL", nil); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *EslWrapper) onEvent(ev *esl.Event) {
	select {
	case w.events <- &EventWrapper{Event: ev}:
	default:
		// dispatch loop must never block; a full buffer here means
		// ReadMessage isn't keeping up, so the oldest unread message wins.
	}
}

// Send runs a plain command.
func (w *EslWrapper) Send(cmd string) error {
	_, err := w.conn.ReqCmd(cmd)
	return err
}

// SendMsg runs a sendmsg scoped to uuid, with data as the body.
func (w *EslWrapper) SendMsg(cmd map[string]string, uuid string, data string) error {
	_, err := w.conn.ReqSendmsg(uuid, cmd, []byte(data))
	return err
}

// BgAPI runs an API command in the background; its result is delivered
// through ReadMessage like any other event, keyed by the wrapper's own
// job-uuid correlation rather than the caller's.
func (w *EslWrapper) BgAPI(cmd string, uuid string) error {
	return w.conn.ReqBgapi(cmd, func(ev *esl.Event) {
		w.onEvent(ev)
	})
}

// ReadMessage returns the next event, blocking until one arrives or the
// connection closes.
func (w *EslWrapper) ReadMessage() (fs.IEvent, error) {
	select {
	case ev, ok := <-w.events:
		if !ok {
			return nil, errors.New("adapters: connection closed")
		}
		return ev, nil
	case <-w.conn.Closed():
		return nil, errors.New("adapters: connection closed")
	}
}

// EventWrapper adapts *esl.Event to fs.IEvent.
type EventWrapper struct {
	*esl.Event
}

// GetHeader returns the named header, case-insensitively.
func (e *EventWrapper) GetHeader(name string) string { return e.Event.Get(name) }

// GetBody returns the event body as bytes.
func (e *EventWrapper) GetBody() []byte { return []byte(e.Event.Body) }
