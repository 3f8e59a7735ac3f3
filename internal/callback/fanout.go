// Package callback implements a multi-subscriber notifier with a
// swallow-and-log error policy (spec.md C1), generalized from passerd's
// CallbackList (callbacks.py) and girc's Caller handler lists.
package callback

import "github.com/sirupsen/logrus"

var log = logrus.WithField("component", "callback")

// Func is a subscriber. It receives whatever arguments List.Call is
// invoked with, plus any arguments the subscriber was registered with.
type Func func(args ...interface{}) error

type subscriber struct {
	fn   Func
	args []interface{}
}

// List is a fanout notifier: N subscribers registered in order, invoked
// in registration order on every Call. By default a subscriber's error is
// logged and swallowed so one bad subscriber cannot break the chain; set
// Strict to re-raise the first error instead.
//
// No ordering guarantees beyond registration order. No reentrancy
// protection: handlers must not add subscribers during dispatch.
type List struct {
	Strict bool
	subs   []subscriber
}

// Add registers a subscriber, optionally with bound arguments that are
// prepended ahead of the arguments passed to Call.
func (l *List) Add(fn Func, boundArgs ...interface{}) {
	l.subs = append(l.subs, subscriber{fn: fn, args: boundArgs})
}

// Len returns the number of registered subscribers.
func (l *List) Len() int { return len(l.subs) }

// Call invokes every subscriber in registration order with args appended
// to each subscriber's bound arguments. In non-strict mode (the default)
// a subscriber's error is logged and dispatch continues; in Strict mode
// the first error aborts the chain and is returned.
func (l *List) Call(args ...interface{}) error {
	for _, s := range l.subs {
		full := make([]interface{}, 0, len(s.args)+len(args))
		full = append(full, s.args...)
		full = append(full, args...)

		if err := s.fn(full...); err != nil {
			if l.Strict {
				return err
			}
			log.WithError(err).Warn("callback subscriber failed")
		}
	}
	return nil
}
