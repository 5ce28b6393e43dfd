// Package session owns the answer to "who is signed in".
//
// A [Manager] is in one of three states: [Unresolved] until [Manager.ResolveInitialSession]
// has read the persisted snapshot, then [Authenticated] or [Anonymous]. Every transition bumps
// a generation counter, which the request pipeline uses to notice that the session it started
// under has ended.
//
// Subscribers registered with [Manager.Subscribe] are called synchronously, in transition order,
// before the call that caused the transition returns. Callbacks must not start another
// transition.
//
// Logout is local first: the manager becomes Anonymous before asking the server to drop its
// cookies, so in-flight requests see the change and neither refresh nor retry. A failed server
// logout is logged and otherwise ignored.
package session
