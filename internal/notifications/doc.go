// package notifications keeps the signed-in user's notification list in sync with the server.
//
// A [Feed] owns one polling goroutine. [Feed.Attach] ties it to a session: the poller runs while
// the session is authenticated and is cancelled the moment it is not. Read markers are applied
// locally first and then sent; a failed send is logged and healed by the next poll.
package notifications
