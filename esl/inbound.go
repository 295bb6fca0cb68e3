package esl

import (
	"bufio"
	"fmt"
	"net"
	"net/textproto"
	"strconv"
	"time"

	"github.com/mjarosz/goesl/internal/logger"
)

// Dial connects to a FreeSWITCH event socket in inbound mode: dial, wait for
// the auth/request challenge, authenticate, then start the multiplexer and
// dispatcher.
func Dial(host string, port int, password string, opts ...DialOption) (*Connection, error) {
	cfg := applyDial(opts)
	log := cfg.logger
	if log == nil {
		log = logger.New("esl")
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, cfg.connTimeout)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectTimeout, err)
	}

	br := bufio.NewReaderSize(conn, readBufferSize)
	tr := textproto.NewReader(br)

	if err := conn.SetReadDeadline(time.Now().Add(cfg.respTimeout)); err != nil {
		conn.Close()
		return nil, err
	}

	env, err := readEnvelope(tr, br)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthTimeout, err)
	}
	if env.contentType == "text/rude-rejection" {
		conn.Close()
		return nil, ErrAuthRejected
	}
	if env.contentType != "auth/request" {
		conn.Close()
		return nil, fmt.Errorf("%w: expected auth/request, got %q", ErrProtocolError, env.contentType)
	}

	if _, err := conn.Write(encodeCommand("auth "+password, nil, nil)); err != nil {
		conn.Close()
		return nil, err
	}

	env, err = readEnvelope(tr, br)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthTimeout, err)
	}
	replyText := env.header.Get("Reply-Text")
	if !isOKReply(replyText) {
		conn.Close()
		return nil, ErrAuthFailure
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, err
	}

	c := newConnection(conn, Inbound, cfg)
	c.log = log.Child("inbound")
	c.start(tr, br)
	return c, nil
}

func isOKReply(replyText string) bool {
	return len(replyText) >= 3 && replyText[:3] == "+OK"
}
