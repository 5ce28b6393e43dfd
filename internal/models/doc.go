// Package models defines the domain types shared by the session core and its collaborators.
//
// # Identity
//
// [Identity] is the authenticated user as reported by the API: id, display name, email and [Role].
// A serialized copy is what the credential store keeps between runs.
//
// # Roles
//
// [Role] is a closed set. [ParseRole] accepts any casing ("organizer", "Organizer", "ORGANIZER")
// and maps anything unrecognised to [RoleUnknown], which never satisfies a role requirement.
// Roles marshal as their upper-case name.
//
// # Registration
//
// [RegisterProfile] carries the sign-up form. [RegisterProfile.Validate] applies the form rules
// before anything is sent: name, email and password are required, organizers also need a company name and bio.
//
// # Notifications
//
// [Notification] is a server-owned message with a read flag. The API may label the id "id" or "_id".
package models
