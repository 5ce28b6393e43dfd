// Package server is the local web front for the session core.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns.
//
// # Route gate
//
// Every page route is wrapped in [Guard], which asks the gate package whether the current session may open
// it. While the session is unresolved the request waits; it never redirects early. Anonymous visitors to a
// protected page are sent to /login?from=<path>, and a successful form login returns them there.
//
// # Handlers
//
//   - [PageHandler] renders the application pages listed in the route table.
//   - [AuthHandler] accepts the login, register and logout forms.
//   - [NavHandler] serves the navigation chrome as JSON at /api/nav.
//
// Request counts are exported at /metrics.
package server
