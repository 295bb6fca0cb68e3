// Package esl implements the FreeSWITCH Event Socket Layer protocol: a
// concurrent protocol engine (codec, I/O multiplexer, event dispatcher)
// shared by both inbound (client) and outbound (server) connections, plus
// the request façade layered on top of it.
package esl

import (
	"bufio"
	"net"
	"net/textproto"
	"runtime"
	"sync"
	"time"

	"github.com/mjarosz/goesl/internal/logger"
)

// Default configuration knobs, overridable via DialOption/ListenOption.
const (
	DefaultConnTimeout        = 5 * time.Second
	DefaultRespTimeout        = 30 * time.Second
	DefaultIncomingBufferSize = 32
)

// AsyncThreadType selects how the per-connection dispatch goroutine is run.
// Go goroutines are M:N scheduled regardless, so ThreadLike is rendered as
// pinning the goroutine to a real OS thread via runtime.LockOSThread - the
// closest analogue to "OS-thread-like worker" available in the language.
type AsyncThreadType int

const (
	// Cooperative runs the dispatch loop as a plain goroutine. Default.
	Cooperative AsyncThreadType = iota
	// ThreadLike locks the dispatch goroutine to an OS thread for its
	// lifetime.
	ThreadLike
)

// Mode distinguishes inbound (we dialed out) from outbound (FreeSWITCH
// dialed in) connections.
type Mode int

const (
	Inbound Mode = iota
	Outbound
)

// special events the façade (ReqBgapi, ReqCallExecute) knows how to avoid
// re-subscribing to.
var specialEventNames = map[string]bool{
	"LOG":                      true,
	"BACKGROUND_JOB":           true,
	"CHANNEL_EXECUTE":          true,
	"CHANNEL_EXECUTE_COMPLETE": true,
	"CHANNEL_HANGUP":           true,
	"CHANNEL_HANGUP_COMPLETE":  true,
}

// Connection is a live ESL connection, inbound or outbound. It is safe to
// share across goroutines for every façade operation.
type Connection struct {
	mode Mode
	conn net.Conn
	mux  *mux
	reg  *registry
	log  *logger.Logger

	respTimeout        time.Duration
	asyncThreadType    AsyncThreadType
	silenceUnhandled   bool
	onCloseCB          func(*Connection)

	specialMu     sync.Mutex
	specialEvents map[string]bool

	channelData map[string]string // outbound only

	dispatchDone chan struct{}
}

func newConnection(conn net.Conn, mode Mode, cfg *config) *Connection {
	log := cfg.logger
	if log == nil {
		log = logger.New("esl")
	}
	c := &Connection{
		mode:             mode,
		conn:             conn,
		reg:              newRegistry(),
		log:              log,
		respTimeout:      cfg.respTimeout,
		asyncThreadType:  cfg.asyncThreadType,
		silenceUnhandled: cfg.silenceUnhandled,
		onCloseCB:        cfg.onClose,
		specialEvents:    make(map[string]bool, len(specialEventNames)),
		dispatchDone:     make(chan struct{}),
	}
	c.mux = newMux(conn, cfg.incomingBufferSize, log.Child("mux"), func() {
		if c.onCloseCB != nil {
			c.onCloseCB(c)
		}
	})
	return c
}

// start launches the receive and dispatch goroutines over the given
// reader, which the caller must have used for any handshake that happens on
// the raw socket before the multiplexer exists (inbound auth), so that no
// buffered-but-unread bytes are stranded behind a freshly allocated
// bufio.Reader.
func (c *Connection) start(tr *textproto.Reader, br *bufio.Reader) {
	go c.receiveLoop(tr, br)
	go c.dispatchLoop()
}

// receiveLoop is the single goroutine that owns reading from the socket. It
// feeds the codec and routes each envelope to the mux's pending-reply FIFO
// or its event channel.
func (c *Connection) receiveLoop(tr *textproto.Reader, br *bufio.Reader) {
	for {
		env, err := readEnvelope(tr, br)
		if err != nil {
			c.mux.closeWithErr(ErrTransportClosed)
			return
		}
		switch env.contentType {
		case "auth/request":
			// Only meaningful during the inbound handshake, which reads
			// directly off the socket before this loop starts; if one
			// arrives here it is spurious and ignored.
			c.log.Warning("unexpected auth/request after handshake")
		case "command/reply":
			c.mux.fulfil(&reply{contentType: env.contentType, header: flattenHeader(env.header), body: env.body})
		case "api/response":
			c.mux.fulfil(&reply{contentType: env.contentType, header: flattenHeader(env.header), body: env.body})
		case "text/event-plain":
			ev, err := parseEventPlain(env.body)
			if err != nil {
				c.log.Warning("%v: %v", ErrProtocolError, err)
				continue
			}
			c.mux.enqueueEvent(ev)
		case "text/event-json":
			ev, err := parseEventJSON(env.body)
			if err != nil {
				c.log.Warning("%v: %v", ErrProtocolError, err)
				continue
			}
			c.mux.enqueueEvent(ev)
		case "text/event-xml":
			ev, err := parseEventXML(env.body)
			if err != nil {
				c.log.Warning("%v: %v", ErrProtocolError, err)
				continue
			}
			c.mux.enqueueEvent(ev)
		case "text/rude-rejection":
			c.mux.closeWithErr(ErrAuthRejected)
			return
		case "text/disconnect-notice":
			c.log.Info("received disconnect-notice, awaiting peer close")
		default:
			c.log.Warning("%v: unrecognized content-type %q", ErrProtocolError, env.contentType)
		}
	}
}

func flattenHeader(h map[string][]string) map[string]string {
	flat := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) == 0 {
			continue
		}
		flat[normalizeHeaderName(k)] = v[0]
	}
	return flat
}

// dispatchLoop is the single goroutine that drains the event channel and
// invokes the best-matching handler for each event, recovering any panic it
// raises.
func (c *Connection) dispatchLoop() {
	defer close(c.dispatchDone)
	if c.asyncThreadType == ThreadLike {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}
	for ev := range c.mux.events {
		c.dispatchOne(ev)
	}
}

func (c *Connection) dispatchOne(ev *Event) {
	bh := c.reg.match(ev)
	if bh == nil {
		if !c.silenceUnhandled {
			c.log.Warning("no handler for event %s", ev.GetType())
		}
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("handler for event %s panicked: %v", ev.GetType(), r)
		}
	}()
	bh.fn(ev)
}

// Closed returns a channel closed exactly once, when the connection tears
// down.
func (c *Connection) Closed() <-chan struct{} {
	return c.mux.closedCh
}

// Close idempotently tears the connection down.
func (c *Connection) Close() error {
	c.mux.closeWithErr(ErrTransportClosed)
	return nil
}

// Disconnect sends "exit" best-effort and relies on the peer to close;
// write failures are logged and swallowed, matching source behavior.
func Disconnect(c *Connection) error {
	if _, err := c.mux.send("exit", nil, nil); err != nil {
		c.log.Warning("disconnect: exit failed: %v", err)
	}
	return nil
}

// ChannelData returns the channel-variable headers obtained from the
// "connect" reply. Only meaningful for outbound connections.
func (c *Connection) ChannelData() map[string]string {
	return c.channelData
}

// Mode reports whether this connection is Inbound or Outbound.
func (c *Connection) Mode() Mode {
	return c.mode
}

func (c *Connection) markSpecialEventEnabled(name string) {
	c.specialMu.Lock()
	c.specialEvents[name] = true
	c.specialMu.Unlock()
}

func (c *Connection) unmarkSpecialEventEnabled(name string) {
	c.specialMu.Lock()
	delete(c.specialEvents, name)
	c.specialMu.Unlock()
}

func (c *Connection) clearSpecialEvents() {
	c.specialMu.Lock()
	c.specialEvents = make(map[string]bool)
	c.specialMu.Unlock()
}

func (c *Connection) isSpecialEventEnabled(name string) bool {
	c.specialMu.Lock()
	defer c.specialMu.Unlock()
	return c.specialEvents[name]
}
