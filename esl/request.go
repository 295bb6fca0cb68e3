package esl

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Req sends an arbitrary command line and returns a channel that receives
// the parsed reply once the wire response arrives.
func (c *Connection) Req(line string, headers map[string]string, body []byte) (<-chan *Reply, error) {
	c.trackSpecialEvent(line)
	ch, err := c.mux.send(line, headers, body)
	if err != nil {
		return nil, err
	}
	out := make(chan *Reply, 1)
	go func() {
		r := <-ch
		if r.err != nil {
			close(out)
			return
		}
		out <- replyFromRaw(r)
		close(out)
	}()
	return out, nil
}

// ReqSync sends a command line and blocks for its reply, or timeout.
func (c *Connection) ReqSync(line string, headers map[string]string, body []byte, timeout time.Duration) (*Reply, error) {
	c.trackSpecialEvent(line)
	r, err := c.mux.sendSync(line, headers, body, timeout)
	if err != nil {
		return nil, err
	}
	return replyFromRaw(r), nil
}

func replyFromRaw(r *reply) *Reply {
	rep := &Reply{
		ReplyText: r.header["reply-text"],
		JobUUID:   r.header["job-uuid"],
		Header:    r.header,
	}
	rep.OK = strings.HasPrefix(rep.ReplyText, "+OK")
	if rep.JobUUID == "" {
		if idx := strings.Index(rep.ReplyText, "Job-UUID: "); idx >= 0 {
			rep.JobUUID = strings.TrimSpace(rep.ReplyText[idx+len("Job-UUID: "):])
		}
	}
	return rep
}

var reservedCmdPrefixes = []string{"bgapi", "sendmsg", "sendevent"}

// ReqCmd sends a plain command line, rejecting verbs that have a dedicated
// Req* method (bgapi, sendmsg, sendevent).
func (c *Connection) ReqCmd(text string) (*Reply, error) {
	trimmed := strings.ToLower(strings.TrimSpace(text))
	for _, p := range reservedCmdPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return nil, ErrArgumentError
		}
	}
	return c.ReqSync(text, nil, nil, c.respTimeout)
}

// ReqApi runs a synchronous API command.
func (c *Connection) ReqApi(command string) (*APIResponse, error) {
	r, err := c.mux.sendSync("api "+command, nil, nil, c.respTimeout)
	if err != nil {
		return nil, err
	}
	return parseAPIResponse(r.body), nil
}

// ReqBgapi runs command in the background. handler is invoked with the
// BACKGROUND_JOB event carrying the result once FreeSWITCH completes the
// job; the api-style result is the event's Body. ReqBgapiResult covers the
// common block-until-done case and returns it already parsed.
func (c *Connection) ReqBgapi(command string, handler HandlerFunc) error {
	if !c.isSpecialEventEnabled("BACKGROUND_JOB") {
		_, _ = c.Req("event BACKGROUND_JOB", nil, nil)
		c.markSpecialEventEnabled("BACKGROUND_JOB")
	}

	jobUUID := uuid.NewString()
	key := map[string]string{"event-name": "BACKGROUND_JOB", "job-uuid": jobUUID}

	var unbind func()
	unbind = c.reg.bind(key, func(ev *Event) {
		unbind()
		handler(ev)
	})

	_, err := c.mux.sendSync("bgapi "+command, map[string]string{"Job-UUID": jobUUID}, nil, c.respTimeout)
	if err != nil {
		unbind()
		return err
	}
	return nil
}

// ReqBgapiResult runs command in the background and blocks the calling
// goroutine until its result arrives, for callers who don't need the raw
// event. Grounded on eslsession's FsConnector.bgapi, which blocks a caller's
// goroutine on a channel fed by the dispatcher.
func (c *Connection) ReqBgapiResult(command string) (*APIResponse, error) {
	result := make(chan *APIResponse, 1)
	err := c.ReqBgapi(command, func(ev *Event) {
		result <- parseBgapiResponse(ev)
	})
	if err != nil {
		return nil, err
	}
	select {
	case r := <-result:
		return r, nil
	case <-c.Closed():
		return nil, ErrTransportClosed
	}
}

// ReqEvent subscribes to eventName (or every event, for "ALL") and binds
// handler for it, keyed additionally by otherHeaders.
func (c *Connection) ReqEvent(handler HandlerFunc, eventName string, otherHeaders map[string]string) error {
	key := make(map[string]string, len(otherHeaders)+1)
	for k, v := range otherHeaders {
		key[k] = v
	}
	if eventName != "ALL" {
		key["event-name"] = eventName
	}

	unbind := c.reg.bind(key, handler)

	_, err := c.Req("event "+eventName, nil, nil)
	if err != nil {
		unbind()
		return err
	}
	return nil
}

// ReqSendevent fires a synthetic event into FreeSWITCH.
func (c *Connection) ReqSendevent(name string, headers map[string]string, body []byte) (*Reply, error) {
	return c.ReqSync("sendevent "+name, headers, body, c.respTimeout)
}

// ReqSendmsg sends a sendmsg command, optionally scoped to chanUUID. Headers
// with empty values are dropped before encoding.
func (c *Connection) ReqSendmsg(chanUUID string, headers map[string]string, body []byte) (*Reply, error) {
	line := "sendmsg"
	if chanUUID != "" {
		line = "sendmsg " + chanUUID
	}
	clean := make(map[string]string, len(headers))
	for k, v := range headers {
		if v == "" {
			continue
		}
		clean[k] = v
	}
	return c.ReqSync(line, clean, body, c.respTimeout)
}

// CallExecuteOptions configures ReqCallExecute.
type CallExecuteOptions struct {
	// ChanUUID scopes execution to a single channel (outbound mode always
	// wants this; inbound call control against a known leg does too).
	ChanUUID string
	// EventUUID, if empty, is generated.
	EventUUID string
	Loops     int
	EventLock bool
	// StartHandler, if set, is invoked once with the CHANNEL_EXECUTE event
	// for this application instance.
	StartHandler HandlerFunc
	// EndHandler, if set, is invoked once with the CHANNEL_EXECUTE_COMPLETE
	// event for this application instance.
	EndHandler HandlerFunc
}

// ReqCallExecute runs a dialplan application via sendmsg, wiring transient
// start/end handlers keyed to this invocation's event-uuid so concurrent
// executions on the same connection never cross-deliver.
func (c *Connection) ReqCallExecute(appCmd string, opts CallExecuteOptions) (*Reply, error) {
	appName, appArg := splitAppCmd(appCmd)

	eventUUID := opts.EventUUID
	if eventUUID == "" {
		eventUUID = uuid.NewString()
	}

	var unbinds []func()
	cleanup := func() {
		for _, u := range unbinds {
			u()
		}
	}

	if opts.StartHandler != nil {
		if !c.isSpecialEventEnabled("CHANNEL_EXECUTE") {
			if _, err := c.Req("event CHANNEL_EXECUTE", nil, nil); err != nil {
				return nil, err
			}
			c.markSpecialEventEnabled("CHANNEL_EXECUTE")
		}
		key := map[string]string{"event-name": "CHANNEL_EXECUTE", "application-uuid": eventUUID}
		if opts.ChanUUID != "" {
			key["unique-id"] = opts.ChanUUID
		}
		var unbind func()
		unbind = c.reg.bind(key, func(ev *Event) {
			unbind()
			opts.StartHandler(ev)
		})
		unbinds = append(unbinds, unbind)
	}

	if opts.EndHandler != nil {
		if !c.isSpecialEventEnabled("CHANNEL_EXECUTE_COMPLETE") {
			if _, err := c.Req("event CHANNEL_EXECUTE_COMPLETE", nil, nil); err != nil {
				cleanup()
				return nil, err
			}
			c.markSpecialEventEnabled("CHANNEL_EXECUTE_COMPLETE")
		}
		key := map[string]string{"event-name": "CHANNEL_EXECUTE_COMPLETE", "application-uuid": eventUUID}
		if opts.ChanUUID != "" {
			key["unique-id"] = opts.ChanUUID
		}
		var unbind func()
		unbind = c.reg.bind(key, func(ev *Event) {
			unbind()
			opts.EndHandler(ev)
		})
		unbinds = append(unbinds, unbind)
	}

	headers := map[string]string{
		"call-command":     "execute",
		"execute-app-name": appName,
		"event-uuid":       eventUUID,
		"content-type":     "text/plain",
		"loops":            fmt.Sprintf("%d", opts.Loops),
		"event-lock":       fmt.Sprintf("%t", opts.EventLock),
	}

	rep, err := c.ReqSendmsg(opts.ChanUUID, headers, []byte(appArg))
	if err != nil {
		cleanup()
		return nil, err
	}
	return rep, nil
}

func splitAppCmd(appCmd string) (name, arg string) {
	appCmd = strings.TrimSpace(appCmd)
	idx := strings.IndexAny(appCmd, " \t")
	if idx < 0 {
		return appCmd, ""
	}
	return appCmd[:idx], strings.TrimSpace(appCmd[idx+1:])
}

// BindEvent registers handler for the given header key-set and returns an
// unbind closure. Equivalent to the registry's bind, exposed on Connection
// for direct use outside the Req* helpers (e.g. CHANNEL_PARK handling).
func (c *Connection) BindEvent(headers map[string]string, h HandlerFunc) func() {
	return c.reg.bind(headers, h)
}

// UnbindEvent removes whatever handler is registered for the given
// header key-set, if any.
func (c *Connection) UnbindEvent(headers map[string]string) {
	c.reg.unbind(headers)
}

// ClearAllEventHandlers removes every registered handler on this connection.
func (c *Connection) ClearAllEventHandlers() {
	c.reg.clear()
}

var enableCommandPrefixes = []string{"event", "myevents"}
var disableCommandPrefixes = []string{"nixevent"}
var clearCommandPrefixes = []string{"noevents"}

// trackSpecialEvent runs for every outgoing command line and updates which
// special events this connection is known to be subscribed to, matching
// FreeSWITCH's tolerant first-token wire parsing (a prefix match, not an
// exact one - "eventsarefunny" is accepted exactly as "events" is).
// "event"/"myevents" subscribe, "nixevent" unsubscribes its named events,
// and "noevents" clears every tracked subscription.
func (c *Connection) trackSpecialEvent(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	verb := strings.ToLower(fields[0])

	switch {
	case hasAnyPrefix(verb, clearCommandPrefixes):
		c.clearSpecialEvents()
	case hasAnyPrefix(verb, disableCommandPrefixes):
		for i := 1; i < len(fields); i++ {
			name := strings.ToUpper(fields[i])
			if specialEventNames[name] {
				c.unmarkSpecialEventEnabled(name)
			}
		}
	case hasAnyPrefix(verb, enableCommandPrefixes):
		for i := 1; i < len(fields); i++ {
			name := strings.ToUpper(fields[i])
			if specialEventNames[name] {
				c.markSpecialEventEnabled(name)
			}
		}
	}
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
