// Package throttle implements the error-throttling feedback loop that
// collapses repeated/many feed failures into a single "muted" notice, and
// a single "recovered" notice on the next success (spec.md C3).
package throttle

// NoticeKind distinguishes the synthetic notices so downstream formatting
// can style them differently (spec.md §4.3).
type NoticeKind int

const (
	// SameErrorMuted is emitted the first time the same error message
	// repeats MaxSame+1 times in a row.
	SameErrorMuted NoticeKind = iota
	// ManyErrorsMuted is emitted the first time MaxDiff+1 errors (of any
	// kind) accumulate since the last Ok().
	ManyErrorsMuted
	// Recovered is emitted once, the first Ok() after being muted.
	Recovered
)

// Notice is a synthetic user-visible message produced by the throttler
// instead of forwarding a raw error.
type Notice struct {
	Kind NoticeKind
	Msg  string // the error message that triggered muting, if applicable.
}

// Report is invoked for every raw error the throttler decides to forward
// unchanged, and the resulting notice path is read through Notices.
type Report func(msg string)

// NoticeFunc receives synthetic "muted"/"recovered" notices.
type NoticeFunc func(Notice)

const (
	defaultMaxSame = 1
	defaultMaxDiff = 4
)

// Throttler wraps a user-visible error-reporting function with the state
// machine described in spec.md §4.3.
type Throttler struct {
	MaxSame int
	MaxDiff int

	Report Report
	Notify NoticeFunc

	lastMsg     string
	sameStreak  int
	totalErrors int
	stopped     bool
}

// New creates a Throttler with the default caps (MaxSame=1, MaxDiff=4).
func New(report Report, notify NoticeFunc) *Throttler {
	return &Throttler{
		MaxSame: defaultMaxSame,
		MaxDiff: defaultMaxDiff,
		Report:  report,
		Notify:  notify,
	}
}

// Error reports an error event. While under both caps it is forwarded
// unchanged via Report. On first breach of either cap, exactly one
// synthetic muted Notice is emitted and the throttler stops forwarding
// until the next Ok().
func (t *Throttler) Error(msg string) {
	if t.stopped {
		return
	}

	if msg == t.lastMsg {
		t.sameStreak++
	} else {
		t.lastMsg = msg
		t.sameStreak = 1
	}
	t.totalErrors++

	if t.sameStreak > t.MaxSame {
		t.mute(SameErrorMuted, msg)
		return
	}
	if t.totalErrors > t.MaxDiff {
		t.mute(ManyErrorsMuted, msg)
		return
	}

	if t.Report != nil {
		t.Report(msg)
	}
}

func (t *Throttler) mute(kind NoticeKind, msg string) {
	t.stopped = true
	if t.Notify != nil {
		t.Notify(Notice{Kind: kind, Msg: msg})
	}
}

// Ok reports a successful operation. Counters reset; if the throttler was
// previously stopped, exactly one Recovered notice is emitted.
func (t *Throttler) Ok() {
	wasStopped := t.stopped

	t.lastMsg = ""
	t.sameStreak = 0
	t.totalErrors = 0
	t.stopped = false

	if wasStopped && t.Notify != nil {
		t.Notify(Notice{Kind: Recovered})
	}
}

// Stopped reports whether the throttler is currently suppressing errors.
func (t *Throttler) Stopped() bool { return t.stopped }
