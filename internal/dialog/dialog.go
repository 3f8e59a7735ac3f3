// Package dialog implements the user-dialog engine (spec.md C6): a small
// pattern-matching state machine used for multi-step conversations (the
// pairing flow, `!`-prefixed channel commands) grounded on
// original_source/passerd's dialogs.py, adapted to Go's explicit
// registration idiom rather than Python's getattr/reflection convention.
package dialog

import (
	"fmt"
	"regexp"
	"strings"
)

// MessageFunc delivers a reply back to whatever transport a Dialog is
// attached to (a channel, a direct message, ...).
type MessageFunc func(msg string)

type patternHandler struct {
	strip bool
	expr  *regexp.Regexp
	fn    func(msg string, m []string) error
}

// Dialog is a stack of regexp-driven message handlers. Dialogs model
// free-form multi-step conversations; CommandDialog builds a `COMMAND
// args` convention on top of it.
type Dialog struct {
	patterns []patternHandler
	sendFunc MessageFunc
}

// SetMessageFunc wires this dialog to wherever its replies should go.
func (d *Dialog) SetMessageFunc(fn MessageFunc) { d.sendFunc = fn }

// Message sends a reply through the configured MessageFunc.
func (d *Dialog) Message(msg string) {
	if d.sendFunc == nil {
		panic("dialog: Message called before SetMessageFunc")
	}
	d.sendFunc(msg)
}

// WaitFor registers a case-insensitive pattern handler, matched against
// the trimmed message. Patterns registered later take precedence over
// earlier ones (spec.md §9): the most specific stage of a conversation is
// usually the one just registered, so new handlers are searched first.
func (d *Dialog) WaitFor(expr string, fn func(msg string, m []string) error) {
	d.waitFor(expr, true, fn)
}

// WaitForRaw is WaitFor without trimming the message before matching.
func (d *Dialog) WaitForRaw(expr string, fn func(msg string, m []string) error) {
	d.waitFor(expr, false, fn)
}

func (d *Dialog) waitFor(expr string, strip bool, fn func(msg string, m []string) error) {
	re := regexp.MustCompile("(?i)" + expr)
	d.patterns = append([]patternHandler{{strip: strip, expr: re, fn: fn}}, d.patterns...)
}

// ClearPatterns drops every registered WaitFor handler, leaving the
// dialog ready for a fresh set of stage patterns.
func (d *Dialog) ClearPatterns() { d.patterns = nil }

// RecvMessage dispatches msg to the first matching pattern, in most-
// recently-registered order. If no pattern matches, UnknownMessage runs.
func (d *Dialog) RecvMessage(msg string) {
	for _, p := range d.patterns {
		s := msg
		if p.strip {
			s = strings.TrimSpace(s)
		}
		m := p.expr.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		if err := p.fn(msg, m); err != nil {
			d.ErrorReply(msg, err)
		}
		return
	}
	d.UnknownMessage(msg)
}

// UnknownMessage is called when no pattern matches an incoming message.
func (d *Dialog) UnknownMessage(msg string) {
	d.Message("Sorry, I don't know what you mean")
}

// ErrorReply is called when a matched handler returns an error.
func (d *Dialog) ErrorReply(msg string, err error) {
	d.Message(fmt.Sprintf("An error has occurred. Sorry. -- %s", err))
}
