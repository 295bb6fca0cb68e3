package eslsession

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	fs "github.com/mjarosz/goesl/fs"
)

// Session is the app-facing handle for one managed channel, layering
// dialplan-application convenience methods over FsConnector.exec.
type Session struct {
	FsConnector
}

// Set sets a variable on the managed channel.
func (s *Session) Set(name string, value string) (fs.IEvent, error) {
	return s.exec("set", name+"="+value)
}

// Unset removes a variable on the managed channel.
func (s *Session) Unset(name string) (fs.IEvent, error) {
	return s.exec("unset", name)
}

// MultiSet sets multiple variables in one application invocation.
func (s *Session) MultiSet(vars map[string]string) (fs.IEvent, error) {
	c := "^^:"
	for k, v := range vars {
		c += k + "=" + v + ":"
	}
	return s.exec("multiset", c)
}

// MultiUnset removes multiple variables in one application invocation.
func (s *Session) MultiUnset(vars map[string]string) (fs.IEvent, error) {
	c := "^^:"
	for k, v := range vars {
		c += k + "=" + v + ":"
	}
	return s.exec("multiunset", c)
}

// Answer runs the answer application on the managed channel.
func (s *Session) Answer() (fs.IEvent, error) {
	return s.exec("answer", "")
}

// PreAnswer runs the pre_answer application on the managed channel.
func (s *Session) PreAnswer() (fs.IEvent, error) {
	return s.exec("pre_answer", "")
}

// Hangup runs the hangup application on the managed channel.
func (s *Session) Hangup(cause ...string) (fs.IEvent, error) {
	c := "NORMAL_CLEARING"
	if len(cause) > 0 {
		c = cause[0]
	}
	return s.exec("hangup", c)
}

// Playback runs the playback application on the managed channel.
func (s *Session) Playback(path string) (fs.IEvent, error) {
	return s.exec("playback", path)
}

// PlayAndGetDigits runs play_and_get_digits on the managed channel.
func (s *Session) PlayAndGetDigits(min uint, max uint, tries uint, timeout uint,
	terminators string, file string, invalidFile string, varName string, regexp string, digitTimeout uint,
	transferOnFailure string) (fs.IEvent, error) {
	args := fmt.Sprintf("%d %d %d %d %s %s %s %s %s %d %s",
		min, max, tries, timeout, terminators, file, invalidFile, varName, regexp, digitTimeout, transferOnFailure)
	return s.exec("play_and_get_digits", strings.TrimSpace(args))
}

// PlayAndGetOneDigit is a convenience wrapper around PlayAndGetDigits for the
// common single-digit case.
func (s *Session) PlayAndGetOneDigit(path string) (uint64, error) {
	varname := "pagd-" + strconv.FormatInt(time.Now().Unix(), 10)
	r, e := s.PlayAndGetDigits(1, 1, 3, 5000, "#", path, "''", varname, "\\d", 5000, "''")
	if e != nil {
		return 0, e
	}
	return strconv.ParseUint(r.GetHeader("variable_"+varname), 10, 32)
}

// Bridge runs the bridge application on the managed channel.
func (s *Session) Bridge(bstr string) (fs.IEvent, error) {
	return s.exec("bridge", bstr)
}

// Voicemail runs the voicemail application on the managed channel.
func (s *Session) Voicemail(settingsProfile string, domain string, username string) (fs.IEvent, error) {
	return s.exec("voicemail", fmt.Sprintf("%s %s %s", settingsProfile, domain, username))
}

// SendEvent fires a custom event via the event application, e.g.
// <action application="event" data="Event-Subclass=...,Event-Name=CUSTOM,..."/>
func (s *Session) SendEvent(headers map[string]string) (fs.IEvent, error) {
	parts := make([]string, 0, len(headers))
	for k, v := range headers {
		parts = append(parts, k+"="+v)
	}
	return s.exec("event", strings.Join(parts, ","))
}

// ExecAPI sends nothing: cmd is ignored and the result is always nil.
func (s *Session) ExecAPI(cmd string) error {
	return nil
}

// ExecBgAPI runs a FreeSWITCH API command in the background and blocks for
// its result.
func (s *Session) ExecBgAPI(cmd string) (fs.IEvent, error) {
	return s.bgapi(cmd)
}

// AddEventHandler registers handler for events named eventName arriving on
// this channel.
func (s *Session) AddEventHandler(eventName string, handler fs.EventHandlerFunc) {
	s.EventHandlers[eventName] = handler
}
