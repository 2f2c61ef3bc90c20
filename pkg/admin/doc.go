// Package admin applies role, admin-flag, username and deletion changes to
// member records.
//
// Every change runs through the role hierarchy (see package roles) plus
// last-owner protection: the only owner can neither demote nor delete
// themselves. Successful writes drop the member's cached identity flags and
// permissions and are recorded in the audit trail.
package admin
