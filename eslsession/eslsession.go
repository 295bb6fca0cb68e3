// Package eslsession implements the "single inbound socket subscribed to
// CHANNEL_PARK globally, one Session spun up per parked call" call-control
// pattern: a complement to esl.Listen's outbound-per-call-socket
// architecture, for deployments that prefer one persistent inbound
// connection to FreeSWITCH over an accept loop.
package eslsession

import (
	"strings"

	l "github.com/mjarosz/goesl/internal/logger"
	fs "github.com/mjarosz/goesl/fs"
)

var logger = l.New("eslsession")

// IEslApp is implemented by call-handling applications driven by a Session.
type IEslApp interface {
	Run()
}

// AppFactory builds an IEslApp bound to a freshly parked channel.
type AppFactory func(s fs.ISession) IEslApp

// SessionManager tracks the live Session for every channel this connection
// currently knows about, keyed by channel UUID.
type SessionManager struct {
	sessions map[string]*Session
}

func newSessionManager() *SessionManager {
	return &SessionManager{sessions: make(map[string]*Session)}
}

func eslSessionHandler(sm *SessionManager, msg fs.IEvent, esl fs.IEsl, f AppFactory) {
	uuid := msg.GetHeader("Unique-ID")
	s := &Session{
		FsConnector: FsConnector{
			uuid:          uuid,
			cmds:          make(chan map[string]string),
			events:        make(chan fs.IEvent),
			errors:        make(chan error),
			execEvent:     make(chan fs.IEvent),
			execError:     make(chan error),
			jobEvent:      make(chan fs.IEvent),
			jobError:      make(chan error),
			logger:        logger,
			EventHandlers: make(map[string]fs.EventHandlerFunc),
		},
	}
	sm.sessions[uuid] = s
	logger.Debug("session %s starting, %s", uuid, getMemStats())
	app := f(s)
	go s.dispatch()
	go app.Run()
	for cmd := range s.cmds {
		esl.SendMsg(cmd, s.uuid, "")
	}
	logger.Debug("session ended: %s", s.uuid)
}

// EslConnectionHandler subscribes to the channel lifecycle events this
// package needs and runs the read loop for the lifetime of client. On
// CHANNEL_PARK it spins up a Session and runs the application built by
// factory in its own goroutine; every other channel event is demuxed to the
// Session already tracking that channel's uuid.
func EslConnectionHandler(client fs.IEsl, factory AppFactory) {
	sm := newSessionManager()
	client.Send("events json CHANNEL_HANGUP CHANNEL_EXECUTE CHANNEL_EXECUTE_COMPLETE CHANNEL_PARK CHANNEL_DESTROY BACKGROUND_JOB")
	for {
		msg, err := client.ReadMessage()
		if err != nil {
			if !strings.Contains(err.Error(), "EOF") && err.Error() != "unexpected end of JSON input" {
				logger.Error("error while reading FreeSWITCH message: %v", err)
				logger.Debug("goroutine dump on connection error:\n%s", dumpAllRoutines())
			}
			for _, s := range sm.sessions {
				s.errors <- err
			}
			break
		}
		eventName := msg.GetHeader("Event-Name")
		eventSubclass := msg.GetHeader("Event-Subclass")
		channelUUID := msg.GetHeader("Unique-ID")
		logger.Debug("got event:%s(%s) uuid:%s", eventName, eventSubclass, channelUUID)
		if eventName == "CHANNEL_PARK" {
			go eslSessionHandler(sm, msg, client, factory)
			continue
		}
		if channelUUID == "" {
			continue
		}
		s, ok := sm.sessions[channelUUID]
		if !ok {
			continue
		}
		if eventName == "CHANNEL_DESTROY" {
			delete(sm.sessions, channelUUID)
			logger.Debug("deleted channel %s, remaining channels: %d", channelUUID, len(sm.sessions))
		}
		select {
		case s.events <- msg:
			logger.Debug("handled event %s for channel %s", eventName, channelUUID)
		default:
			logger.Debug("ignoring event %s for channel %s", eventName, channelUUID)
		}
	}
	logger.Info("connection handler exited")
}
