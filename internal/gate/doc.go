// package gate decides whether the current session may open an application route.
//
// [Decide] is the pure role check. [Table] maps URL patterns to the roles they require and
// [Table.Evaluate] turns a decision into a redirect target, carrying the requested path in
// the login redirect so sign-in can return to it.
package gate
