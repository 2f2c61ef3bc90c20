// Package lists stores anime lists, their items and each member's watched
// markers.
//
// Lists are personal, bound to a group, or global. Access for writes goes
// through the authorization gateway; public lists can be read by anyone.
// Two system lists are created on demand and hidden from listings: the
// default working list and the watched list.
package lists
