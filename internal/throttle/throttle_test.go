package throttle

import "testing"

func TestForwardsBelowCaps(t *testing.T) {
	var reported []string
	var notices []Notice

	th := New(func(msg string) { reported = append(reported, msg) }, func(n Notice) { notices = append(notices, n) })
	th.Error("timeout")

	if len(reported) != 1 {
		t.Fatalf("reported = %v, want 1 message forwarded", reported)
	}
	if len(notices) != 0 {
		t.Fatalf("notices = %v, want none", notices)
	}
}

func TestSameErrorMutedAfterMaxSame(t *testing.T) {
	var reported []string
	var notices []Notice

	th := New(func(msg string) { reported = append(reported, msg) }, func(n Notice) { notices = append(notices, n) })
	th.MaxSame = 1

	th.Error("timeout") // 1st, forwarded
	th.Error("timeout") // 2nd identical, breaches MaxSame -> muted notice
	th.Error("timeout") // swallowed silently
	th.Error("timeout") // swallowed silently

	if len(reported) != 1 {
		t.Errorf("reported = %v, want exactly 1 forwarded before muting", reported)
	}
	if len(notices) != 1 || notices[0].Kind != SameErrorMuted {
		t.Fatalf("notices = %v, want exactly one SameErrorMuted", notices)
	}
	if !th.Stopped() {
		t.Error("Stopped() = false, want true after muting")
	}
}

func TestManyDifferentErrorsMuted(t *testing.T) {
	var notices []Notice
	th := New(func(msg string) {}, func(n Notice) { notices = append(notices, n) })
	th.MaxDiff = 4

	th.Error("a")
	th.Error("b")
	th.Error("c")
	th.Error("d")
	th.Error("e") // 5th distinct error breaches MaxDiff=4

	if len(notices) != 1 || notices[0].Kind != ManyErrorsMuted {
		t.Fatalf("notices = %v, want exactly one ManyErrorsMuted", notices)
	}
}

func TestRecoveryEmitsExactlyOneNotice(t *testing.T) {
	var reported []string
	var notices []Notice
	th := New(func(msg string) { reported = append(reported, msg) }, func(n Notice) { notices = append(notices, n) })
	th.MaxSame = 1

	th.Error("timeout")
	th.Error("timeout")
	th.Error("timeout") // still muted

	th.Ok()
	th.Ok() // second Ok should not emit another Recovered

	var recovered int
	for _, n := range notices {
		if n.Kind == Recovered {
			recovered++
		}
	}
	if recovered != 1 {
		t.Fatalf("recovered notices = %d, want exactly 1", recovered)
	}

	reported = nil
	th.Error("timeout")
	if len(reported) != 1 {
		t.Error("normal forwarding should resume after recovery")
	}
}
