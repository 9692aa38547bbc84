// Package statemachine implements a small, concurrency-safe finite-state
// machine used to drive connection lifecycles such as the notification feed
// subscription.
//
// States and events are interfaces with a single Name method; StringState and
// StringEvent cover the common case. A machine is built from an initial state
// and a list of options declaring the allowed transitions:
//
//	const (
//	    Idle       = statemachine.StringState("idle")
//	    Connecting = statemachine.StringState("connecting")
//	    Subscribed = statemachine.StringState("subscribed")
//	    Closed     = statemachine.StringState("closed")
//
//	    Open  = statemachine.StringEvent("open")
//	    Ready = statemachine.StringEvent("ready")
//	    Close = statemachine.StringEvent("close")
//	)
//
//	sm := statemachine.MustNew(Idle,
//	    statemachine.WithTransition(Idle, Connecting, Open),
//	    statemachine.WithTransition(Connecting, Subscribed, Ready),
//	    statemachine.WithTransitionFromAny([]statemachine.State{Idle, Connecting, Subscribed}, Closed, Close),
//	)
//
//	if err := sm.Fire(ctx, Open, nil); err != nil {
//	    // not allowed from the current state
//	}
//
// # Guards and actions
//
// A transition may carry guards, which veto it based on the data passed to
// Fire, and actions, which run after every guard passed and before the state
// changes. A failing action leaves the machine where it was.
//
// # Observers
//
// Observers registered with WithObserver run after a transition has been
// committed and outside the machine lock, so they may read Current. They must
// not call Fire on the same machine.
//
// # Errors
//
// Fire returns *ErrNoTransitionAvailable when no transition is declared for the
// current state and event, and *ErrTransitionRejected when every candidate was
// vetoed by a guard. IsNoTransitionAvailableError and IsTransitionRejectedError
// test for them.
package statemachine
