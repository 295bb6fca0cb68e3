package esl

import (
	"bufio"
	"net"
	"net/textproto"

	"github.com/mjarosz/goesl/internal/logger"
)

// OutboundHandlerFunc drives one accepted outbound call. conn is fully
// initialized (connect/linger/myevents already negotiated) by the time the
// handler runs; chanData holds the channel variables from the connect
// reply. When the handler returns, the connection is closed.
type OutboundHandlerFunc func(conn *Connection, chanData map[string]string)

// Listen accepts FreeSWITCH outbound-mode connections on addr and runs fn
// for each one, in its own goroutine, after the connect/[pre-init]/init
// handshake completes.
func Listen(addr string, fn OutboundHandlerFunc, opts ...ListenOption) error {
	cfg := applyListen(opts)
	log := cfg.logger
	if log == nil {
		log = logger.New("esl")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveOutbound(conn, fn, cfg, log.Child("outbound"))
	}
}

func serveOutbound(conn net.Conn, fn OutboundHandlerFunc, cfg *config, log *logger.Logger) {
	c := newConnection(conn, Outbound, cfg)
	c.log = log

	br := bufio.NewReaderSize(conn, readBufferSize)
	tr := textproto.NewReader(br)
	c.start(tr, br)

	defer c.Close()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("outbound handler panicked: %v", r)
		}
	}()

	rep, err := c.mux.sendSync("connect", nil, nil, c.respTimeout)
	if err != nil {
		c.log.Error("outbound connect handshake failed: %v", err)
		return
	}
	chanData := channelDataFromReply(rep.header)
	c.channelData = chanData

	if cfg.preInitFn != nil {
		cfg.preInitFn(c, chanData)
	}

	if cfg.customInitFn != nil {
		if err := cfg.customInitFn(c, chanData); err != nil {
			c.log.Error("custom init failed: %v", err)
			return
		}
	} else {
		if _, err := c.mux.sendSync("linger", nil, nil, c.respTimeout); err != nil {
			c.log.Error("linger failed: %v", err)
			return
		}
		if _, err := c.mux.sendSync("myevents", nil, nil, c.respTimeout); err != nil {
			c.log.Error("myevents failed: %v", err)
			return
		}
	}

	fn(c, chanData)
}
