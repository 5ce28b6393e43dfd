// Package ui implements the terminal notification center using bubbletea's Elm architecture.
//
// The TUI has two views:
//  1. [ListView] : the notification list with the unread badge in the header
//  2. [SignedOutView] : shown once the session ends, by logout or because it could not be renewed
//
// Feed and session changes arrive from their own goroutines. Their subscribers push a [Msg] onto a
// buffered channel without blocking, and the model drains it with a waiting command, so a slow
// terminal never holds up a session transition.
//
// Keys: j/k to move, enter to mark read, a to mark everything read, r to refresh, x to log out, q to quit.
package ui
