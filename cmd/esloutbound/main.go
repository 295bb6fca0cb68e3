// Command esloutbound runs an outbound-mode ESL server: FreeSWITCH dials in
// once per call, and this process answers, plays a prompt, and hangs up each
// one. Grounded on seun104-go-switch's example/fsswitch outbound/inbound
// split (one example binary per mode) and on esl.Listen itself.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mjarosz/goesl/esl"
)

func main() {
	addr := flag.String("listen", ":8084", "address to accept FreeSWITCH outbound connections on")
	flag.Parse()

	log.Printf("esloutbound listening on %s", *addr)
	err := esl.Listen(*addr, handleCall)
	if err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func handleCall(conn *esl.Connection, chanData map[string]string) {
	uuid := chanData["unique-id"]
	log.Printf("handling call %s", uuid)

	if _, err := conn.ReqCallExecute("answer", esl.CallExecuteOptions{ChanUUID: uuid}); err != nil {
		log.Printf("answer failed: %v", err)
		return
	}

	done := make(chan *esl.Event, 1)
	_, err := conn.ReqCallExecute("playback ivr-welcome.wav", esl.CallExecuteOptions{
		ChanUUID:   uuid,
		EndHandler: func(ev *esl.Event) { done <- ev },
	})
	if err != nil {
		log.Printf("playback failed: %v", err)
		return
	}
	select {
	case <-done:
	case <-conn.Closed():
		return
	}

	if _, err := conn.ReqCallExecute("hangup NORMAL_CLEARING", esl.CallExecuteOptions{ChanUUID: uuid}); err != nil {
		log.Printf("hangup failed: %v", err)
	}
	fmt.Printf("call %s finished\n", uuid)
}
