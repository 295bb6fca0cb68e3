// Command eslinbound dials a FreeSWITCH event socket in inbound mode,
// subscribes to the channel lifecycle, and drives every parked call through
// a demo dialplan-like application.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mjarosz/goesl/adapters"
	"github.com/mjarosz/goesl/esl"
	"github.com/mjarosz/goesl/eslsession"
	fs "github.com/mjarosz/goesl/fs"
)

func main() {
	host := flag.String("host", "127.0.0.1", "FreeSWITCH ESL host")
	port := flag.Int("port", 8021, "FreeSWITCH ESL port")
	password := flag.String("password", "ClueCon", "FreeSWITCH ESL password")
	flag.Parse()

	conn, err := esl.Dial(*host, *port, *password)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	w, err := adapters.NewEslWrapper(conn)
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}

	eslsession.EslConnectionHandler(w, newDemoApp)
	fmt.Println("eslinbound exited")
}

// demoApp answers every parked channel, plays a prompt, and bridges to a
// fixed destination.
type demoApp struct {
	session fs.ISession
}

func newDemoApp(s fs.ISession) eslsession.IEslApp {
	return &demoApp{session: s}
}

func (app *demoApp) Run() {
	app.session.Answer()
	app.session.Set("hangup_after_bridge", "true")
	app.session.Set("continue_on_fail", "true")
	app.session.Set("call_timeout", "20")
	app.session.Playback("ivr-welcome.wav")

	r, err := app.session.Bridge("user/1000@internal")
	if err != nil {
		fmt.Printf("bridge error: %s\n", err)
		return
	}
	if cause := r.GetHeader("variable_originate_failed_cause"); cause != "" {
		fmt.Printf("call failed with cause: %s\n", cause)
		app.session.Voicemail("default", "$${domain}", "1000")
	}
	app.session.Hangup("NORMAL_CLEARING")
}
