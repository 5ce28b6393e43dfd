// Package services implements the clients the session core uses to reach the EMS REST API.
//
// # Transport
//
// [APIService] sends one [Request] and returns an [APIResponse]. The underlying [http.Client]
// carries a cookie jar ([NewHTTPClient]); the API authenticates with HttpOnly cookies, so the
// client never handles tokens itself. [APIService.UseCookieStore] persists every Set-Cookie so a
// later process starts with the same credentials. Each request carries a fresh X-Request-ID.
// [APIService.ClearCookies] empties the jar and the store when the session ends. Requests sent
// under [WithGeneration] keep their Set-Cookie only while [APIService.GuardCookies] reports that
// generation still active, so a late response cannot restore a session that was signed out.
//
// Non-2xx responses come back as [*APIError], which unwraps to a sentinel from the shared package:
//   - 400, 422 : [shared.ErrValidation]
//   - 401 : [shared.ErrAuthorizationExpired]
//   - 403 : [shared.ErrForbidden]
//   - 404 : [shared.ErrNotFound]
//   - 409 : [shared.ErrDuplicateAccount]
//   - 5xx : [shared.ErrServer]
//
// Transport failures wrap [shared.ErrNetwork].
//
// # Credential endpoints
//
// [AuthService] covers login, register, logout and refresh. These calls go straight to the
// transport so that a 401 from login reads as [shared.ErrInvalidCredentials].
//
// # Authorized requests
//
// [AuthorizedClient.Fetch] is how every other call is made. On a 401 it joins or starts the
// single in-flight refresh (golang.org/x/sync/singleflight), then replays the request once.
// The refresh runs detached from the caller's context, bounded by a timeout. When it fails the
// session is expired through [SessionTracker.Expire] and the redirect hook is called once;
// every waiting caller gets the original 401. A request started under a session that has since
// ended is neither refreshed nor replayed.
//
// Counters for refreshes, replays and expiries are exported through [Metrics].
package services
