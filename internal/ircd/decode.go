package ircd

import (
	"html"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// DecodeIncoming decodes a raw line off the wire. UTF-8 is tried first
// (the preferred encoding per spec.md §6); if the bytes are not valid
// UTF-8 they are assumed to be ISO-8859-1 and decoded as Latin-1, which
// can represent every byte value and therefore never fails.
func DecodeIncoming(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		// charmap.ISO8859_1 cannot actually fail to decode arbitrary bytes,
		// but fall back to a lossy UTF-8 conversion rather than panic.
		return string(raw)
	}
	return string(out)
}

// EncodeOutgoing encodes text for the wire. Outbound text is always UTF-8
// per spec.md §6.
func EncodeOutgoing(s string) []byte { return []byte(s) }

// DecodeEntities runs the two-stage HTML-entity decode spec.md §6
// requires: entries arrive already singly-encoded (named and numeric
// references), but the remote service double-encodes "&lt;"/"&gt;", so a
// second unescape pass is required to fully resolve them.
func DecodeEntities(s string) string {
	return html.UnescapeString(html.UnescapeString(s))
}
