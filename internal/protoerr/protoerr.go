// Package protoerr implements the kind-1 "protocol-reply" error used to
// turn a command handler's failure directly into an IRC numeric reply.
package protoerr

import "fmt"

// Reply is a protocol-reply error: a handler determined the IRC-level
// response it wants sent back, rather than failing unexpectedly. The
// session's dispatch shell converts it into a numeric reply instead of
// logging it as an internal error.
type Reply struct {
	Numeric string   // e.g. "401", "477"
	Args    []string // numeric arguments, not including the nick or trailing
	Text    string   // trailing text of the numeric reply
}

func (r *Reply) Error() string {
	return fmt.Sprintf("%s %v :%s", r.Numeric, r.Args, r.Text)
}

// New builds a Reply.
func New(numeric string, text string, args ...string) *Reply {
	return &Reply{Numeric: numeric, Args: args, Text: text}
}

// NoSuchNick builds a 401 ERR_NOSUCHNICK reply.
func NoSuchNick(nick string) *Reply {
	return New("401", "No such nick/channel", nick)
}

// UnknownCommand builds a 421 ERR_UNKNOWNCOMMAND reply.
func UnknownCommand(cmd string) *Reply {
	return New("421", "Unknown command", cmd)
}

// UnavailResource builds a 437 ERR_UNAVAILRESOURCE reply.
func UnavailResource(what string) *Reply {
	return New("437", "Nick/channel is temporarily unavailable", what)
}

// PasswdMismatch builds a 464 ERR_PASSWDMISMATCH reply.
func PasswdMismatch() *Reply {
	return New("464", "Password incorrect")
}

// UnknownMode builds a 472 ERR_UNKNOWNMODE reply.
func UnknownMode(char string) *Reply {
	return New("472", "is unknown mode char to me", char)
}

// NeedReggedNick builds a 477 ERR_NEEDREGGEDNICK reply.
func NeedReggedNick(channel string) *Reply {
	return New("477", "You need to be authenticated to join this channel", channel)
}

// NoPrivileges builds a 481 ERR_NOPRIVILEGES reply.
func NoPrivileges() *Reply {
	return New("481", "Permission Denied- You're not an IRC operator")
}

// CannotSendToChan builds a 404-style cannot-send reply; passerd uses this
// for the message-too-long pre-check (spec.md kind 5).
func CannotSendToChan(channel, reason string) *Reply {
	return New("404", reason, channel)
}
