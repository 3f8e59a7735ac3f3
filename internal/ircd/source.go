package ircd

import "strings"

const (
	prefixUser byte = 0x21 // '!'
	prefixHost byte = 0x40 // '@'
)

// Source represents the sender of an event: a nickname (with optional
// ident/host) or a bare server name.
type Source struct {
	Name  string
	Ident string
	Host  string
}

// ParseSource parses a raw prefix string into a Source.
func ParseSource(raw string) *Source {
	s := new(Source)

	user := strings.IndexByte(raw, prefixUser)
	host := strings.IndexByte(raw, prefixHost)

	switch {
	case user > 0 && host > user:
		s.Name = raw[:user]
		s.Ident = raw[user+1 : host]
		s.Host = raw[host+1:]
	case user > 0:
		s.Name = raw[:user]
		s.Ident = raw[user+1:]
	case host > 0:
		s.Name = raw[:host]
		s.Host = raw[host+1:]
	default:
		s.Name = raw
	}

	return s
}

// String returns the wire representation of the source.
func (s *Source) String() string {
	out := s.Name
	if len(s.Ident) > 0 {
		out += string(prefixUser) + s.Ident
	}
	if len(s.Host) > 0 {
		out += string(prefixHost) + s.Host
	}
	return out
}

// NewSource builds a nick!user@host source for the bot pseudo-user or a
// session's own user, following the convention used throughout the
// formatting layer.
func NewSource(nick, ident, host string) *Source {
	return &Source{Name: nick, Ident: ident, Host: host}
}
