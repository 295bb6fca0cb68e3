package esl

import "errors"

// Sentinel errors surfaced by the esl package.
var (
	// ErrTransportClosed is returned by any façade call made after the
	// connection has closed, and to every waiter still outstanding when
	// close happens.
	ErrTransportClosed = errors.New("esl: connection closed")

	// ErrTimeout is returned by ReqSync/sendSync when the configured
	// response window elapses before a reply arrives. The connection is
	// closed as a side effect.
	ErrTimeout = errors.New("esl: response timeout")

	// ErrConnectionPoisoned is returned to any waiter that was already
	// outstanding when a sibling call's timeout forced the connection
	// closed; a reply for it may still be in flight on the wire and would
	// misalign the FIFO if accepted.
	ErrConnectionPoisoned = errors.New("esl: connection poisoned by a prior timeout")

	// ErrAuthFailure is returned by Dial when FreeSWITCH rejects the auth
	// password.
	ErrAuthFailure = errors.New("esl: authentication failed")

	// ErrAuthRejected is returned by Dial when the peer sends
	// text/rude-rejection instead of auth/request (ACL rejection).
	ErrAuthRejected = errors.New("esl: connection rejected by access control")

	// ErrAuthTimeout is returned by Dial when the auth handshake does not
	// complete within RespTimeout.
	ErrAuthTimeout = errors.New("esl: authentication timed out")

	// ErrConnectTimeout is returned by Dial when the initial TCP dial does
	// not complete within ConnTimeout.
	ErrConnectTimeout = errors.New("esl: connect timed out")

	// ErrArgumentError is returned by ReqCmd when called with a command
	// that has its own dedicated request method (bgapi, sendmsg, sendevent).
	ErrArgumentError = errors.New("esl: use the dedicated Req* method for this command")

	// ErrProtocolError marks an envelope that could not be parsed or whose
	// Content-Type was not recognized. It is logged, not returned: the
	// connection stays open per source behavior.
	ErrProtocolError = errors.New("esl: protocol error")
)
