// Package groups manages groups, their members and invitations.
//
// Membership questions (my groups, a caller's role, the member roster,
// username lookups) go through the authorization gateway so they behave the
// same with or without the privileged procedures. Writes use insert-if-absent
// and pending-only updates: answering an invitation twice, or racing two
// answers, leaves one membership row and one terminal status.
package groups
