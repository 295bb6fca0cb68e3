package esl

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// readBufferSize sizes the bufio.Reader wrapping each connection's socket.
const readBufferSize = 1024 << 6

// envelope is one parsed ESL message: its Content-Type header plus whatever
// the caller needs to interpret the rest (MIME header set and framed body).
type envelope struct {
	contentType string
	header      textproto.MIMEHeader
	body        []byte
}

// readEnvelope parses exactly one complete ESL envelope from tr/br: a header
// block terminated by a blank line, plus - if Content-Length is present - that
// many bytes of body immediately following. br must be the same underlying
// reader tr was built from (textproto.Reader buffers header lines but not
// the body).
func readEnvelope(tr *textproto.Reader, br *bufio.Reader) (*envelope, error) {
	header, err := tr.ReadMIMEHeader()
	if err != nil {
		return nil, err
	}
	env := &envelope{
		contentType: header.Get("Content-Type"),
		header:      header,
	}
	if cl := header.Get("Content-Length"); cl != "" {
		n, err := strconv.Atoi(cl)
		if err != nil {
			return nil, fmt.Errorf("esl: bad Content-Length %q: %w", cl, err)
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("esl: short body: %w", err)
		}
		env.body = body
	}
	return env, nil
}

// encodeCommand renders an outgoing ESL command: the command line, then each
// header as "Name: Value", then the Content-Length/body framing (or a bare
// trailing blank line when body is empty). Header iteration order is
// deterministic (sorted) so output is reproducible, but the protocol does
// not require any particular order.
func encodeCommand(line string, headers map[string]string, body []byte) []byte {
	var b bytes.Buffer
	b.WriteString(line)
	b.WriteByte('\n')

	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := headers[k]
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", k, collapseNewlines(v))
	}

	if len(body) > 0 {
		fmt.Fprintf(&b, "Content-Length: %d\n\n", len(body))
		b.Write(body)
	} else {
		b.WriteByte('\n')
	}
	return b.Bytes()
}

// collapseNewlines turns any run of whitespace in a header value into a
// single space, since a literal newline would otherwise break envelope
// framing.
func collapseNewlines(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// urlDecode percent-decodes a header value, the format FreeSWITCH uses for
// text/event-plain headers.
func urlDecode(v string) (string, error) {
	return url.QueryUnescape(v)
}

// readHeaderBlock parses "Name: Value" lines up to (and consuming) the first
// blank line from r, returning the header map and whatever bytes remain
// unread in r afterward (the event body, for text/event-plain envelopes
// whose body section carries its own Content-Length).
func readHeaderBlock(r io.Reader) (map[string]string, []byte, error) {
	br := bufio.NewReader(r)
	tr := textproto.NewReader(br)
	mime, err := tr.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, nil, err
	}
	header := make(map[string]string, len(mime))
	for k, v := range mime {
		if len(v) == 0 {
			continue
		}
		header[k] = v[0]
	}
	rest, _ := io.ReadAll(br)
	return header, rest, nil
}

// parseCommandReply interprets a command/reply envelope's headers.
func parseCommandReply(header textproto.MIMEHeader) *Reply {
	replyText := header.Get("Reply-Text")
	r := &Reply{
		OK:        strings.HasPrefix(replyText, "+OK"),
		ReplyText: replyText,
		JobUUID:   header.Get("Job-UUID"),
		Header:    make(map[string]string, len(header)),
	}
	for k, v := range header {
		if len(v) == 0 {
			continue
		}
		r.Header[normalizeHeaderName(k)] = v[0]
	}
	if r.JobUUID == "" {
		if idx := strings.Index(replyText, "Job-UUID: "); idx >= 0 {
			r.JobUUID = strings.TrimSpace(replyText[idx+len("Job-UUID: "):])
		}
	}
	return r
}

// parseAPIResponse interprets an api/response envelope's body. Matching
// source behavior: any body not starting with "-ERR" is considered ok.
func parseAPIResponse(body []byte) *APIResponse {
	s := string(body)
	return &APIResponse{
		OK:     !strings.HasPrefix(s, "-ERR"),
		Result: s,
	}
}

// channelDataFromReply URL-decodes the channel-variable headers carried in
// the command/reply to an outbound "connect" (everything but Content-Type
// and Content-Length, which are envelope framing, not channel variables).
// header is already flattened and lowercased by the receive loop.
func channelDataFromReply(header map[string]string) map[string]string {
	data := make(map[string]string, len(header))
	for k, v := range header {
		switch k {
		case "content-type", "content-length":
			continue
		}
		decoded, err := urlDecode(v)
		if err != nil {
			decoded = v
		}
		data[k] = decoded
	}
	return data
}
