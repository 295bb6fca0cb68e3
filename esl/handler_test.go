package esl

import "testing"

func TestRegistryMatchesSubset(t *testing.T) {
	r := newRegistry()
	var got *Event
	r.bind(map[string]string{"event-name": "CHANNEL_ANSWER"}, func(ev *Event) { got = ev })

	ev := newEvent()
	ev.Header["event-name"] = "CHANNEL_ANSWER"
	ev.Header["unique-id"] = "abc"

	bh := r.match(ev)
	if bh == nil {
		t.Fatal("expected a match")
	}
	bh.fn(ev)
	if got != ev {
		t.Fatal("handler was not invoked with the matched event")
	}
}

func TestRegistryNoMatch(t *testing.T) {
	r := newRegistry()
	r.bind(map[string]string{"event-name": "CHANNEL_HANGUP"}, func(ev *Event) {})

	ev := newEvent()
	ev.Header["event-name"] = "CHANNEL_ANSWER"

	if r.match(ev) != nil {
		t.Fatal("expected no match")
	}
}

func TestRegistryPrefersMostSpecific(t *testing.T) {
	r := newRegistry()
	var generalFired, specificFired bool
	r.bind(map[string]string{"event-name": "CUSTOM"}, func(ev *Event) { generalFired = true })
	r.bind(map[string]string{"event-name": "CUSTOM", "event-subclass": "myapp::notify"}, func(ev *Event) { specificFired = true })

	ev := newEvent()
	ev.Header["event-name"] = "CUSTOM"
	ev.Header["event-subclass"] = "myapp::notify"
	ev.Header["unique-id"] = "abc"

	bh := r.match(ev)
	if bh == nil {
		t.Fatal("expected a match")
	}
	bh.fn(ev)
	if !specificFired || generalFired {
		t.Fatalf("expected the more specific handler to win: specific=%v general=%v", specificFired, generalFired)
	}
}

func TestRegistryTieBreakIsDeterministic(t *testing.T) {
	r := newRegistry()
	r.bind(map[string]string{"event-name": "CUSTOM", "foo": "bar"}, func(ev *Event) {})
	r.bind(map[string]string{"event-name": "CUSTOM", "baz": "qux"}, func(ev *Event) {})

	ev := newEvent()
	ev.Header["event-name"] = "CUSTOM"
	ev.Header["foo"] = "bar"
	ev.Header["baz"] = "qux"

	var first string
	for i := 0; i < 20; i++ {
		bh := r.match(ev)
		if bh == nil {
			t.Fatal("expected a match")
		}
		if i == 0 {
			first = bh.canonical
			continue
		}
		if bh.canonical != first {
			t.Fatalf("tie-break was not deterministic: %q vs %q", bh.canonical, first)
		}
	}
}

func TestRegistryUnbind(t *testing.T) {
	r := newRegistry()
	key := map[string]string{"event-name": "CHANNEL_ANSWER"}
	r.bind(key, func(ev *Event) {})
	r.unbind(key)

	ev := newEvent()
	ev.Header["event-name"] = "CHANNEL_ANSWER"
	if r.match(ev) != nil {
		t.Fatal("expected handler to be gone after unbind")
	}
}

func TestRegistryBindReturnsWorkingUnbind(t *testing.T) {
	r := newRegistry()
	unbind := r.bind(map[string]string{"event-name": "CHANNEL_ANSWER"}, func(ev *Event) {})
	unbind()

	ev := newEvent()
	ev.Header["event-name"] = "CHANNEL_ANSWER"
	if r.match(ev) != nil {
		t.Fatal("expected handler to be gone after calling the unbind closure")
	}
}

func TestPairKeyNormalization(t *testing.T) {
	if pairKey(" Event-Name ", " channel_answer ") != pairKey("event-name", "CHANNEL_ANSWER") {
		t.Fatal("pairKey should normalize case and whitespace on both sides")
	}
}
