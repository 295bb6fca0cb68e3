package esl

import (
	"bufio"
	"net"
	"testing"
	"time"
)

// fakeFreeswitch emulates just enough of the inbound wire protocol for
// Dial/ReqApi to exercise the real codec/mux/connection stack end to end -
// the way danielePala-tosi's connection tests dial a loopback server started
// in a goroutine, instead of mocking the transport.
func fakeFreeswitch(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("Content-Type: auth/request\n\n")); err != nil {
		t.Errorf("fake fs: write auth/request: %v", err)
		return
	}

	br := bufio.NewReader(conn)
	if _, err := br.ReadString('\n'); err != nil { // "auth <password>"
		t.Errorf("fake fs: read auth command: %v", err)
		return
	}
	if _, err := br.ReadString('\n'); err != nil { // blank line terminator
		t.Errorf("fake fs: read auth terminator: %v", err)
		return
	}

	reply := "Content-Type: command/reply\nReply-Text: +OK accepted\n\n"
	if _, err := conn.Write([]byte(reply)); err != nil {
		t.Errorf("fake fs: write auth reply: %v", err)
		return
	}

	if _, err := br.ReadString('\n'); err != nil { // "api status"
		t.Errorf("fake fs: read api command: %v", err)
		return
	}
	if _, err := br.ReadString('\n'); err != nil { // blank line terminator
		t.Errorf("fake fs: read api terminator: %v", err)
		return
	}

	body := "+OK fine"
	apiReply := "Content-Type: api/response\nContent-Length: 8\n\n" + body
	if _, err := conn.Write([]byte(apiReply)); err != nil {
		t.Errorf("fake fs: write api response: %v", err)
	}
}

func TestDialAndReqApi(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go fakeFreeswitch(t, ln)

	addr := ln.Addr().(*net.TCPAddr)
	conn, err := Dial("127.0.0.1", addr.Port, "ClueCon", WithConnTimeout(time.Second), WithRespTimeout(time.Second))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	resp, err := conn.ReqApi("status")
	if err != nil {
		t.Fatalf("ReqApi: %v", err)
	}
	if !resp.OK {
		t.Fatal("expected an OK api response")
	}
	if resp.Result != "+OK fine" {
		t.Fatalf("got result %q", resp.Result)
	}
}

func TestDialAuthFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.Write([]byte("Content-Type: auth/request\n\n"))
		br := bufio.NewReader(conn)
		br.ReadString('\n')
		br.ReadString('\n')
		conn.Write([]byte("Content-Type: command/reply\nReply-Text: -ERR invalid\n\n"))
	}()

	addr := ln.Addr().(*net.TCPAddr)
	_, err = Dial("127.0.0.1", addr.Port, "wrong-password", WithRespTimeout(time.Second))
	if err != ErrAuthFailure {
		t.Fatalf("got %v, want ErrAuthFailure", err)
	}
}
