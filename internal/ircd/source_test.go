package ircd

import "testing"

func TestParseSource(t *testing.T) {
	tests := []struct {
		in   string
		want Source
	}{
		{"alice!ident@host", Source{Name: "alice", Ident: "ident", Host: "host"}},
		{"alice!ident", Source{Name: "alice", Ident: "ident"}},
		{"alice@host", Source{Name: "alice", Host: "host"}},
		{"irc.example.net", Source{Name: "irc.example.net"}},
	}

	for _, tt := range tests {
		got := ParseSource(tt.in)
		if *got != tt.want {
			t.Errorf("ParseSource(%q) = %+v, want %+v", tt.in, *got, tt.want)
		}
	}
}

func TestSourceString(t *testing.T) {
	s := &Source{Name: "alice", Ident: "ident", Host: "host"}
	if got, want := s.String(), "alice!ident@host"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
