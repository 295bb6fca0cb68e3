package eslsession

import (
	"errors"

	"github.com/google/uuid"
	l "github.com/mjarosz/goesl/internal/logger"
	fs "github.com/mjarosz/goesl/fs"
)

// ErrChannelClosed is returned by exec/bgapi once the channel this
// FsConnector is bound to has hung up.
var ErrChannelClosed = errors.New("eslsession: channel closed")

// FsConnector sits between the raw event stream (fs.IEsl.ReadMessage, demuxed
// per-channel by EslConnectionHandler) and a Session, turning "send this
// command, wait for its matching completion event" into a blocking call.
type FsConnector struct {
	uuid string
	// cmds carries outgoing command headers to EslConnectionHandler's write
	// loop, which owns the shared fs.IEsl.
	cmds chan map[string]string
	// events receives every event demuxed to this channel's uuid, both exec
	// completions and plain channel events for EventHandlers.
	events chan fs.IEvent
	// errors receives transport errors observed by EslConnectionHandler.
	errors chan error

	// execEvent/execError wake whichever exec() call is currently
	// outstanding.
	execEvent chan fs.IEvent
	execError chan error

	jobEvent chan fs.IEvent
	jobError chan error

	currentAppUUID string
	currentJobUUID string
	closed         bool
	logger         *l.Logger
	EventHandlers  map[string]fs.EventHandlerFunc
}

func (c *FsConnector) close() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.cmds)
}

// dispatch is the per-channel goroutine that correlates completion events
// with whichever exec/bgapi call is outstanding and fans the rest out to
// EventHandlers. It exits once the channel is destroyed or the transport
// errors.
func (c *FsConnector) dispatch() {
	for {
		select {
		case event := <-c.events:
			ename := event.GetHeader("Event-Name")
			c.logger.Debug("dispatch(): got event %s:%s", ename, c.uuid)
			euuid := event.GetHeader("Application-UUID")
			if ename == "CHANNEL_EXECUTE_COMPLETE" && euuid == c.currentAppUUID {
				select { // must be nonblocking: exec() may not be waiting
				case c.execEvent <- event:
				default:
				}
			}
			juuid := event.GetHeader("Job-UUID")
			if ename == "BACKGROUND_JOB" && juuid == c.currentJobUUID {
				select {
				case c.jobEvent <- event:
				default:
				}
			}
			if ename == "CHANNEL_DESTROY" {
				c.close()
				select {
				case c.execError <- ErrChannelClosed:
				default:
				}
				select {
				case c.jobError <- ErrChannelClosed:
				default:
				}
				c.logger.Debug("dispatch(): ended by CHANNEL_DESTROY")
				return
			}
			if h, ok := c.EventHandlers[ename]; ok {
				go h(event)
			}
		case err := <-c.errors: // inform blocked execs and bgapis
			select {
			case c.execError <- err:
			default:
			}
			select {
			case c.jobError <- err:
			default:
			}
			c.close()
			c.logger.Debug("dispatch(): ended by error: %v", err)
			return
		}
	}
}

// exec runs a dialplan application on the managed channel and blocks until
// its CHANNEL_EXECUTE_COMPLETE arrives, correlated by a per-call Event-UUID -
// the channel may be up and running, mid-hangup, or already gone by the time
// this returns.
func (c *FsConnector) exec(app string, args string) (fs.IEvent, error) {
	if c.closed {
		return nil, ErrChannelClosed
	}
	headers := map[string]string{
		"call-command":     "execute",
		"execute-app-name": app,
		"execute-app-arg":  args,
		"Event-UUID":       uuid.NewString(),
	}
	c.currentAppUUID = headers["Event-UUID"]
	defer func() { c.currentAppUUID = "" }()

	c.cmds <- headers

	select {
	case event := <-c.execEvent:
		return event, nil
	case err := <-c.execError:
		c.logger.Debug("exec(%s,%s)(%s) error: %s", app, args, c.currentAppUUID, err)
		return nil, err
	}
}

// bgapi runs an API command in the background and blocks until its
// BACKGROUND_JOB completion event arrives, correlated by a per-call
// Job-UUID.
func (c *FsConnector) bgapi(cmd string) (fs.IEvent, error) {
	if c.closed {
		return nil, ErrChannelClosed
	}
	headers := map[string]string{
		"bgapi":    cmd,
		"Job-UUID": uuid.NewString(),
	}
	c.currentJobUUID = headers["Job-UUID"]
	defer func() { c.currentJobUUID = "" }()

	c.cmds <- headers

	select {
	case event := <-c.jobEvent:
		c.logger.Debug("bgapi(%s) => %s", cmd, event.GetBody())
		return event, nil
	case err := <-c.jobError:
		c.logger.Debug("bgapi(%s) error: %s", cmd, err)
		return nil, err
	}
}
