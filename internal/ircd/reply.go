package ircd

// NumericReply builds a numeric reply Event with the session's nick as the
// first parameter, per spec.md §4.7 ("numeric reply emission with the
// session nick as the first argument").
func NumericReply(serverName, nick, numeric string, args []string, trailing string) *Event {
	params := make([]string, 0, len(args)+1)
	params = append(params, nick)
	params = append(params, args...)
	return &Event{
		Source:   &Source{Name: serverName},
		Command:  numeric,
		Params:   params,
		Trailing: trailing,
	}
}

// Notice builds a NOTICE event from source to target.
func Notice(source *Source, target, text string) *Event {
	return &Event{Source: source, Command: NOTICE, Params: []string{target}, Trailing: text}
}

// Privmsg builds a PRIVMSG event from source to target.
func Privmsg(source *Source, target, text string) *Event {
	return &Event{Source: source, Command: PRIVMSG, Params: []string{target}, Trailing: text}
}

// Chunk splits items into batches of at most size, used for e.g. NAMES
// replies which passerd sends in batches of 30 nicks (spec.md §4.8).
func Chunk(items []string, size int) [][]string {
	if size <= 0 {
		return [][]string{items}
	}
	var out [][]string
	for len(items) > 0 {
		if len(items) <= size {
			out = append(out, items)
			break
		}
		out = append(out, items[:size])
		items = items[size:]
	}
	return out
}
