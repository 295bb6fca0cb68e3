package eslsession

import (
	"errors"
	"testing"
	"time"

	l "github.com/mjarosz/goesl/internal/logger"
	fs "github.com/mjarosz/goesl/fs"
)

// fakeEvent is a minimal fs.IEvent backed by a plain header map, the same
// shape a real adapters.EventWrapper exposes to this package.
type fakeEvent struct {
	headers map[string]string
	body    string
}

func (e *fakeEvent) GetHeader(name string) string { return e.headers[name] }
func (e *fakeEvent) GetBody() []byte              { return []byte(e.body) }
func (e *fakeEvent) GetType() string              { return e.headers["Event-Name"] }

func newTestConnector() (*FsConnector, func(fs.IEvent)) {
	c := &FsConnector{
		uuid:          "chan-1",
		cmds:          make(chan map[string]string, 4),
		events:        make(chan fs.IEvent, 4),
		errors:        make(chan error, 1),
		execEvent:     make(chan fs.IEvent, 1),
		execError:     make(chan error, 1),
		jobEvent:      make(chan fs.IEvent, 1),
		jobError:      make(chan error, 1),
		logger:        l.New("eslsession.test"),
		EventHandlers: make(map[string]fs.EventHandlerFunc),
	}
	go c.dispatch()
	return c, func(ev fs.IEvent) { c.events <- ev }
}

func TestExecCorrelatesByApplicationUUID(t *testing.T) {
	c, deliver := newTestConnector()

	result := make(chan fs.IEvent, 1)
	execErr := make(chan error, 1)
	go func() {
		ev, err := c.exec("playback", "welcome.wav")
		if err != nil {
			execErr <- err
			return
		}
		result <- ev
	}()

	var headers map[string]string
	select {
	case headers = <-c.cmds:
	case <-time.After(time.Second):
		t.Fatal("exec never sent a command")
	}
	appUUID := headers["Event-UUID"]
	if appUUID == "" {
		t.Fatal("exec did not attach an Event-UUID")
	}

	// an unrelated completion for a different application must not satisfy
	// this call.
	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name":       "CHANNEL_EXECUTE_COMPLETE",
		"Application-UUID": "some-other-uuid",
	}})
	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name":       "CHANNEL_EXECUTE_COMPLETE",
		"Application-UUID": appUUID,
	}})

	select {
	case ev := <-result:
		if ev.GetHeader("Application-UUID") != appUUID {
			t.Fatalf("got application-uuid %q, want %q", ev.GetHeader("Application-UUID"), appUUID)
		}
	case err := <-execErr:
		t.Fatalf("exec returned error: %v", err)
	case <-time.After(time.Second):
		t.Fatal("exec never returned")
	}
}

func TestBgapiCorrelatesByJobUUID(t *testing.T) {
	c, deliver := newTestConnector()

	result := make(chan fs.IEvent, 1)
	go func() {
		ev, err := c.bgapi("status")
		if err != nil {
			t.Errorf("bgapi returned error: %v", err)
			return
		}
		result <- ev
	}()

	var headers map[string]string
	select {
	case headers = <-c.cmds:
	case <-time.After(time.Second):
		t.Fatal("bgapi never sent a command")
	}
	jobUUID := headers["Job-UUID"]

	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name": "BACKGROUND_JOB",
		"Job-UUID":   jobUUID,
	}, body: "+OK fine"})

	select {
	case ev := <-result:
		if string(ev.GetBody()) != "+OK fine" {
			t.Fatalf("got body %q", ev.GetBody())
		}
	case <-time.After(time.Second):
		t.Fatal("bgapi never returned")
	}
}

func TestChannelDestroyClosesAndFailsOutstandingExec(t *testing.T) {
	c, deliver := newTestConnector()

	execErr := make(chan error, 1)
	go func() {
		_, err := c.exec("playback", "welcome.wav")
		execErr <- err
	}()

	select {
	case <-c.cmds:
	case <-time.After(time.Second):
		t.Fatal("exec never sent a command")
	}

	deliver(&fakeEvent{headers: map[string]string{"Event-Name": "CHANNEL_DESTROY"}})

	select {
	case err := <-execErr:
		if err != ErrChannelClosed {
			t.Fatalf("got %v, want ErrChannelClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("exec never returned after CHANNEL_DESTROY")
	}

	if _, err := c.exec("answer", ""); err != ErrChannelClosed {
		t.Fatalf("got %v, want ErrChannelClosed for exec after close", err)
	}
}

func TestTransportErrorFailsOutstandingCalls(t *testing.T) {
	c, _ := newTestConnector()

	execErr := make(chan error, 1)
	go func() {
		_, err := c.exec("playback", "welcome.wav")
		execErr <- err
	}()

	select {
	case <-c.cmds:
	case <-time.After(time.Second):
		t.Fatal("exec never sent a command")
	}

	wantErr := errors.New("boom")
	c.errors <- wantErr

	select {
	case err := <-execErr:
		if err != wantErr {
			t.Fatalf("got %v, want %v", err, wantErr)
		}
	case <-time.After(time.Second):
		t.Fatal("exec never returned after transport error")
	}
}

func TestEventHandlersFireForUncorrelatedEvents(t *testing.T) {
	c, deliver := newTestConnector()

	got := make(chan fs.IEvent, 1)
	c.EventHandlers["CHANNEL_ANSWER"] = func(ev fs.IEvent) { got <- ev }

	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name": "CHANNEL_ANSWER",
		"Unique-ID":  "chan-1",
	}})

	select {
	case ev := <-got:
		if ev.GetHeader("Unique-ID") != "chan-1" {
			t.Fatalf("got unique-id %q", ev.GetHeader("Unique-ID"))
		}
	case <-time.After(time.Second):
		t.Fatal("event handler never fired")
	}
}
