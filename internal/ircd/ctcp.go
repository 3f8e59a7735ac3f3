package ircd

import "strings"

// ctcpDelim is the prefix/suffix byte of a CTCP-formatted message.
const ctcpDelim byte = 0x01

// CTCP is a decoded CTCP extension message, e.g. an ACTION ("/me").
type CTCP struct {
	Source  *Source
	Command string
	Text    string
	Reply   bool // true if this arrived via NOTICE (a CTCP reply).
}

// DecodeCTCP extracts a CTCP payload from a PRIVMSG/NOTICE event. Returns
// nil if the event isn't CTCP-framed.
func DecodeCTCP(e *Event) *CTCP {
	if len(e.Params) != 1 || len(e.Trailing) < 3 {
		return nil
	}
	if e.Command != PRIVMSG && e.Command != NOTICE {
		return nil
	}
	if e.Trailing[0] != ctcpDelim || e.Trailing[len(e.Trailing)-1] != ctcpDelim {
		return nil
	}

	text := e.Trailing[1 : len(e.Trailing)-1]
	sp := strings.IndexByte(text, eventSpace)

	if sp < 0 {
		return &CTCP{Source: e.Source, Command: text, Reply: e.Command == NOTICE}
	}

	return &CTCP{
		Source:  e.Source,
		Command: text[:sp],
		Text:    text[sp+1:],
		Reply:   e.Command == NOTICE,
	}
}

// EncodeCTCP wraps a CTCP command+text for outbound transmission as a
// PRIVMSG trailing payload (e.g. to build an ACTION message).
func EncodeCTCP(command, text string) string {
	if text == "" {
		return string(ctcpDelim) + command + string(ctcpDelim)
	}
	return string(ctcpDelim) + command + " " + text + string(ctcpDelim)
}

// IsAction reports whether a decoded CTCP is a "/me" action.
func (c *CTCP) IsAction() bool { return c != nil && c.Command == "ACTION" }
