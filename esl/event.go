package esl

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Event is a FreeSWITCH event: a mapping from normalized header name to
// string value, plus an optional body. Header names are stored lowercased
// (e.g. "Event-Name" -> "event-name") so Get is case-insensitive by
// construction.
type Event struct {
	Header map[string]string
	Body   string
}

func newEvent() *Event {
	return &Event{Header: make(map[string]string)}
}

// Get returns the header value for name (case-insensitive), or "".
func (e *Event) Get(name string) string {
	return e.Header[normalizeHeaderName(name)]
}

// GetInt parses the named header as an integer.
func (e *Event) GetInt(name string) (int, error) {
	return strconv.Atoi(e.Get(name))
}

// GetBody returns the event body, if any.
func (e *Event) GetBody() string {
	return e.Body
}

// GetType returns the normalized event-name header, the closest analogue to
// a type discriminator for an otherwise open set of event kinds.
func (e *Event) GetType() string {
	return e.Get("Event-Name")
}

func (e *Event) String() string {
	keys := make([]string, 0, len(e.Header))
	for k := range e.Header {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, e.Header[k])
	}
	if e.Body != "" {
		fmt.Fprintf(&b, "body=%s", e.Body)
	}
	return b.String()
}

// normalizeHeaderName lowercases a wire header name, e.g. "Event-Name" -> "event-name".
func normalizeHeaderName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// parseEventPlain parses a text/event-plain envelope body: another header
// block, optionally followed (after its own blank line) by a
// Content-Length-delimited event body.
func parseEventPlain(body []byte) (*Event, error) {
	header, rest, err := readHeaderBlock(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("esl: parse event-plain: %w", err)
	}
	ev := newEvent()
	for k, v := range header {
		decoded, err := urlDecode(v)
		if err != nil {
			decoded = v
		}
		ev.Header[normalizeHeaderName(k)] = decoded
	}
	if cl := ev.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, fmt.Errorf("esl: bad event Content-Length %q: %w", cl, err)
		}
		if n > len(rest) {
			return nil, fmt.Errorf("esl: truncated event body: want %d, have %d", n, len(rest))
		}
		ev.Body = string(rest[:n])
	}
	return ev, nil
}

// parseEventJSON parses a text/event-json envelope body: a JSON object whose
// members become event fields. A "_body" member, if present, becomes the
// event body.
func parseEventJSON(body []byte) (*Event, error) {
	raw := make(map[string]interface{})
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("esl: parse event-json: %w", err)
	}
	ev := newEvent()
	for k, v := range raw {
		if k == "_body" {
			continue
		}
		ev.Header[normalizeHeaderName(k)] = stringifyJSONValue(v)
	}
	if b, ok := raw["_body"]; ok {
		ev.Body = stringifyJSONValue(b)
	}
	return ev, nil
}

func stringifyJSONValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []interface{}:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = stringifyJSONValue(e)
		}
		return strings.Join(parts, "|:")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

// xmlEvent mirrors FreeSWITCH's text/event-xml shape:
// <event><headers><name>value</name>...</headers><body>...</body></event>
type xmlEvent struct {
	XMLName xml.Name    `xml:"event"`
	Headers []xmlHeader `xml:",any"`
}

type xmlHeader struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

// parseEventXML parses a text/event-xml envelope body.
func parseEventXML(body []byte) (*Event, error) {
	var root struct {
		XMLName xml.Name `xml:"event"`
		Headers struct {
			Fields []xmlHeader `xml:",any"`
		} `xml:"headers"`
		Body string `xml:"body"`
	}
	if err := xml.Unmarshal(body, &root); err != nil {
		return nil, fmt.Errorf("esl: parse event-xml: %w", err)
	}
	ev := newEvent()
	for _, f := range root.Headers.Fields {
		ev.Header[normalizeHeaderName(f.XMLName.Local)] = strings.TrimSpace(f.Value)
	}
	ev.Body = root.Body
	return ev, nil
}

// Reply represents a parsed command/reply.
type Reply struct {
	OK        bool
	ReplyText string
	JobUUID   string
	Header    map[string]string
}

// APIResponse represents a parsed api/response or bgapi result body.
type APIResponse struct {
	OK     bool
	Result string
}

// parseBgapiResponse extracts the api-style result carried in a
// BACKGROUND_JOB event's body.
func parseBgapiResponse(ev *Event) *APIResponse {
	result := ev.Body
	return &APIResponse{
		OK:     !strings.HasPrefix(result, "-ERR"),
		Result: result,
	}
}
