// Package profiles stores member profiles and serves the self-service
// endpoints: reading the caller's profile, choosing a username and looking
// up other members by username prefix.
//
// Usernames are trimmed and must be 3 to 32 characters; uniqueness is
// case-insensitive and enforced both by a pre-check and by the database
// constraint.
package profiles
