package eslsession

import (
	"strings"
	"testing"
	"time"

	l "github.com/mjarosz/goesl/internal/logger"
	fs "github.com/mjarosz/goesl/fs"
)

func newTestSession() (*Session, func(fs.IEvent)) {
	s := &Session{FsConnector: FsConnector{
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
	}}
	go s.dispatch()
	return s, func(ev fs.IEvent) { s.events <- ev }
}

// completeCurrentApp reads the command a pending exec() call just sent and
// immediately replies with its CHANNEL_EXECUTE_COMPLETE, returning the sent
// headers so the caller can assert on the application/args chosen.
func completeCurrentApp(t *testing.T, s *Session, deliver func(fs.IEvent)) map[string]string {
	t.Helper()
	var headers map[string]string
	select {
	case headers = <-s.cmds:
	case <-time.After(time.Second):
		t.Fatal("no command was sent")
	}
	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name":       "CHANNEL_EXECUTE_COMPLETE",
		"Application-UUID": headers["Event-UUID"],
	}})
	return headers
}

func TestSessionUnsetUsesTheUnsetApplication(t *testing.T) {
	s, deliver := newTestSession()

	done := make(chan struct{})
	var headers map[string]string
	go func() {
		defer close(done)
		if _, err := s.Unset("my_var"); err != nil {
			t.Errorf("Unset: %v", err)
		}
	}()

	select {
	case headers = <-s.cmds:
	case <-time.After(time.Second):
		t.Fatal("no command was sent")
	}
	if headers["execute-app-name"] != "unset" {
		t.Fatalf("got execute-app-name %q, want %q", headers["execute-app-name"], "unset")
	}
	if headers["execute-app-arg"] != "my_var" {
		t.Fatalf("got execute-app-arg %q, want %q", headers["execute-app-arg"], "my_var")
	}

	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name":       "CHANNEL_EXECUTE_COMPLETE",
		"Application-UUID": headers["Event-UUID"],
	}})
	<-done
}

func TestSessionSetBuildsNameValueArg(t *testing.T) {
	s, deliver := newTestSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Set("my_var", "42"); err != nil {
			t.Errorf("Set: %v", err)
		}
	}()

	headers := completeCurrentApp(t, s, deliver)
	if headers["execute-app-name"] != "set" || headers["execute-app-arg"] != "my_var=42" {
		t.Fatalf("got %q %q", headers["execute-app-name"], headers["execute-app-arg"])
	}
	<-done
}

func TestSessionHangupDefaultsToNormalClearing(t *testing.T) {
	s, deliver := newTestSession()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := s.Hangup(); err != nil {
			t.Errorf("Hangup: %v", err)
		}
	}()

	headers := completeCurrentApp(t, s, deliver)
	if headers["execute-app-arg"] != "NORMAL_CLEARING" {
		t.Fatalf("got execute-app-arg %q, want NORMAL_CLEARING", headers["execute-app-arg"])
	}
	<-done
}

func TestSessionPlayAndGetOneDigitParsesResult(t *testing.T) {
	s, deliver := newTestSession()

	result := make(chan uint64, 1)
	go func() {
		d, err := s.PlayAndGetOneDigit("ivr-enter_pin.wav")
		if err != nil {
			t.Errorf("PlayAndGetOneDigit: %v", err)
			return
		}
		result <- d
	}()

	var headers map[string]string
	select {
	case headers = <-s.cmds:
	case <-time.After(time.Second):
		t.Fatal("no command was sent")
	}
	if headers["execute-app-name"] != "play_and_get_digits" {
		t.Fatalf("got execute-app-name %q", headers["execute-app-name"])
	}

	// the var name is the only token embedded by PlayAndGetOneDigit we don't
	// know ahead of time (it's time-seeded); pull it back out of the args.
	fields := strings.Fields(headers["execute-app-arg"])
	digitVar := fields[7]

	deliver(&fakeEvent{headers: map[string]string{
		"Event-Name":           "CHANNEL_EXECUTE_COMPLETE",
		"Application-UUID":     headers["Event-UUID"],
		"variable_" + digitVar: "5",
	}})

	select {
	case d := <-result:
		if d != 5 {
			t.Fatalf("got %d, want 5", d)
		}
	case <-time.After(time.Second):
		t.Fatal("PlayAndGetOneDigit never returned")
	}
}
