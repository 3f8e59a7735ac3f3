package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/passerd-irc/passerd/internal/auth"
	"github.com/passerd-irc/passerd/internal/channel"
	"github.com/passerd-irc/passerd/internal/ircd"
	"github.com/passerd-irc/passerd/internal/protoerr"
)

// handlerFunc processes one parsed IRC command against a session.
type handlerFunc func(s *Session, e *ircd.Event) error

// commandTable maps wire commands to handlers (spec.md §9 "a registration
// table keyed by command string", generalized from the per-command
// dispatch convention to C9's IRC commands instead of C6's `!`-commands).
var commandTable = map[string]handlerFunc{
	ircd.PASS:     handlePASS,
	ircd.NICK:     handleNICK,
	ircd.USER:     handleUSER,
	ircd.JOIN:     handleJOIN,
	ircd.PART:     handlePART,
	ircd.QUIT:     handleQUIT,
	ircd.PRIVMSG:  handlePRIVMSG,
	ircd.NOTICE:   handleNOTICE,
	ircd.MODE:     handleMODE,
	ircd.INVITE:   handleINVITE,
	ircd.KICK:     handleKICK,
	ircd.WHO:      handleWHO,
	ircd.WHOIS:    handleWHOIS,
	ircd.USERHOST: handleUSERHOST,
	ircd.PING:     handlePING,
	ircd.PONG:     handlePONG,
}

func firstParam(e *ircd.Event) string {
	if len(e.Params) == 0 {
		return ""
	}
	return e.Params[0]
}

func handlePASS(s *Session, e *ircd.Event) error {
	s.pass = firstParam(e)
	return s.maybeCompleteRegistration(context.Background())
}

func handleNICK(s *Session, e *ircd.Event) error {
	newNick := firstParam(e)
	if newNick == "" && e.Trailing != "" {
		newNick = e.Trailing
	}
	if newNick == "" {
		return protoerr.New("431", "No nickname given")
	}

	if s.state == StateAuthenticated || s.state == StateAnonymous {
		old := s.nick
		s.nick = newNick
		return s.Conn.WriteEvent(&ircd.Event{
			Source: ircd.NewSource(old, old, s.ServerName), Command: ircd.NICK, Params: []string{newNick},
		})
	}

	s.nick = newNick
	return s.maybeCompleteRegistration(context.Background())
}

func handleUSER(s *Session, e *ircd.Event) error {
	if s.state == StateAuthenticated || s.state == StateAnonymous {
		return nil
	}
	if len(e.Params) < 1 {
		return protoerr.New("461", "Not enough parameters", "USER")
	}
	s.user = e.Params[0]
	s.real = e.Trailing

	if s.pass == "" {
		return s.promoteAnonymous(context.Background())
	}
	return s.maybeCompleteRegistration(context.Background())
}

func handleQUIT(s *Session, e *ircd.Event) error {
	s.closed = true
	return nil
}

func handlePING(s *Session, e *ircd.Event) error {
	token := e.Trailing
	if token == "" {
		token = firstParam(e)
	}
	return s.Conn.WriteEvent(&ircd.Event{
		Source: ircd.NewSource(s.ServerName, "", ""), Command: ircd.PONG, Params: []string{s.ServerName}, Trailing: token,
	})
}

func handlePONG(s *Session, e *ircd.Event) error { return nil }

func handleNOTICE(s *Session, e *ircd.Event) error { return nil }

// handlePRIVMSG routes a PRIVMSG either to the bot user (pairing dialog /
// !login), or to one of the session's joined channels; CTCP ACTION
// always posts directly, bypassing careful mode (spec.md §9 notes).
func handlePRIVMSG(s *Session, e *ircd.Event) error {
	if len(e.Params) < 1 {
		return protoerr.New("411", "No recipient given")
	}
	target := e.Params[0]
	text := e.Trailing

	if strings.EqualFold(target, s.BotNick) {
		return s.handleBotMessage(text)
	}

	c, ok := s.channels[strings.ToLower(target)]
	if !ok {
		return protoerr.NoSuchNick(target)
	}

	if ctcp := ircd.DecodeCTCP(e); ctcp.IsAction() {
		return c.Post(context.Background(), ctcp.Text)
	}

	return c.TryPost(context.Background(), text)
}

// handleBotMessage implements "Messages to the bot user" (spec.md
// §4.10): `/MSG passerd-bot login nick password`, or otherwise routed
// into the in-progress #new-user-setup pairing dialog.
func (s *Session) handleBotMessage(text string) error {
	fields := strings.Fields(text)
	if len(fields) == 3 && strings.EqualFold(fields[0], "login") {
		account, ok := auth.Login(context.Background(), s.Store, fields[1], fields[2])
		if !ok {
			s.Notice(s.BotNick, s.nick, "login failed")
			return nil
		}
		return s.completeAuth(context.Background(), account)
	}

	if s.pairing != nil {
		s.pairing.RecvMessage(text)
		return nil
	}

	s.Notice(s.BotNick, s.nick, "unknown message")
	return nil
}

func handleJOIN(s *Session, e *ircd.Event) error {
	if len(e.Params) < 1 {
		return protoerr.New("461", "Not enough parameters", "JOIN")
	}
	for _, name := range strings.Split(e.Params[0], ",") {
		kind, params, err := parseChannelName(name)
		if err != nil {
			return protoerr.UnavailResource(name)
		}
		if kind.RequiresAuth() && s.state != StateAuthenticated {
			return protoerr.NeedReggedNick(name)
		}

		c := s.getOrCreateChannel(kind, params)
		if len(c.Feeds) == 0 {
			s.wireChannelFeedsForKind(c, kind, params)
		}
		s.autoJoin(c)
	}
	return nil
}

func handlePART(s *Session, e *ircd.Event) error {
	if len(e.Params) < 1 {
		return protoerr.New("461", "Not enough parameters", "PART")
	}
	for _, name := range strings.Split(e.Params[0], ",") {
		key := strings.ToLower(name)
		c, ok := s.channels[key]
		if !ok {
			continue
		}
		for _, f := range c.Feeds {
			f.StopRefreshing()
		}
		delete(s.channels, key)
	}
	return nil
}

func handleINVITE(s *Session, e *ircd.Event) error {
	if len(e.Params) < 2 {
		return protoerr.New("461", "Not enough parameters", "INVITE")
	}
	nick, chName := e.Params[0], e.Params[1]
	c, ok := s.channels[strings.ToLower(chName)]
	if !ok {
		return protoerr.NoSuchNick(chName)
	}
	if err := c.HandleInvite(context.Background(), nick); err != nil {
		return err
	}
	s.numericf(ircd.RPL_INVITING, []string{chName, nick}, "")
	return nil
}

func handleKICK(s *Session, e *ircd.Event) error {
	if len(e.Params) < 2 {
		return protoerr.New("461", "Not enough parameters", "KICK")
	}
	chName, nick := e.Params[0], e.Params[1]
	c, ok := s.channels[strings.ToLower(chName)]
	if !ok {
		return protoerr.NoSuchNick(chName)
	}
	return c.HandleKick(context.Background(), nick, s.nick, e.Trailing)
}

// handleMODE implements the ban-list-only stub (spec.md §4.8 "MODE").
func handleMODE(s *Session, e *ircd.Event) error {
	if len(e.Params) < 1 {
		return protoerr.New("461", "Not enough parameters", "MODE")
	}
	chName := e.Params[0]
	if len(e.Params) >= 2 && e.Params[1] == "b" {
		s.numericf(ircd.RPL_ENDOFBANLIST, []string{chName}, "End of channel ban list")
		return nil
	}
	if len(e.Params) == 1 {
		s.numericf(ircd.RPL_CHANNELMODEIS, []string{chName, "+"}, "")
		return nil
	}
	return protoerr.UnknownMode(e.Params[1])
}

func handleWHO(s *Session, e *ircd.Event) error {
	target := firstParam(e)
	c, ok := s.channels[strings.ToLower(target)]
	if !ok {
		s.numericf(ircd.RPL_ENDOFWHO, []string{target}, "End of WHO list")
		return nil
	}
	members, err := c.Members(context.Background())
	if err != nil {
		return err
	}
	for _, nick := range members {
		s.numericf(ircd.RPL_WHOREPLY, []string{target, "*", s.ServerName, s.ServerName, nick, "H"}, "0 "+nick)
	}
	s.numericf(ircd.RPL_ENDOFWHO, []string{target}, "End of WHO list")
	return nil
}

func handleWHOIS(s *Session, e *ircd.Event) error {
	nick := firstParam(e)
	if nick == "" {
		return protoerr.New("431", "No nickname given")
	}
	info, ok := s.Identities.LookupByScreenName(nick)
	if !ok {
		return protoerr.NoSuchNick(nick)
	}
	s.numericf(ircd.RPL_WHOISUSER, []string{nick, nick, s.ServerName, "*"}, info.DisplayName)
	// 301 is overloaded to carry profile fields alongside the WHOIS reply
	// (spec.md §6), following passerd's own ircd.py WHOIS handler, which
	// sends one RPL_AWAY line per profile attribute ahead of 318.
	s.numericf(ircd.RPL_AWAY, []string{nick}, info.DisplayName)
	s.numericf(ircd.RPL_ENDOFWHOIS, []string{nick}, "End of WHOIS list")
	return nil
}

func handleUSERHOST(s *Session, e *ircd.Event) error {
	entries := make([]string, 0, len(e.Params))
	for _, nick := range e.Params {
		entries = append(entries, fmt.Sprintf("%s=+%s@%s", nick, nick, s.ServerName))
	}
	s.numericf(ircd.RPL_USERHOST, nil, strings.Join(entries, " "))
	return nil
}

// parseChannelName maps a wire channel name to its virtual-channel kind
// and params (spec.md §6 "Channel names").
func parseChannelName(name string) (channel.Kind, channel.Params, error) {
	switch {
	case name == "#twitter":
		return channel.Home, channel.Params{}, nil
	case name == "#mentions":
		return channel.Mentions, channel.Params{}, nil
	case name == "#new-user-setup":
		return channel.Setup, channel.Params{}, nil
	case strings.HasPrefix(name, "#@"):
		rest := strings.TrimPrefix(name, "#@")
		if owner, list, ok := strings.Cut(rest, "/"); ok {
			return channel.List, channel.Params{ListOwner: owner, ListName: list}, nil
		}
		return channel.User, channel.Params{User: rest}, nil
	default:
		return 0, channel.Params{}, fmt.Errorf("session: unknown channel %q", name)
	}
}
