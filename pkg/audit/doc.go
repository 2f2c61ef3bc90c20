// Package audit records privileged actions: admin edits and deletions, role
// registry changes, group membership changes, proposal moderation, global
// list creation and proposal purges.
//
// # Usage
//
// Services hold a Logger (DBLogger in production, usually wrapped in a
// MultiLogger together with a StructuredLogger) and record through the
// package helpers:
//
//	audit.LogAdminAction(ctx, s.audit, audit.EventTypeAdminUserUpdate, actor.UserID, targetID, "role changed")
//
// A nil Logger falls back to the one stored in the context, and to a no-op
// logger when there is none. Audit failures are logged by the caller and never
// fail the operation being audited.
//
// # Reading
//
// DBLogger.Search and DBLogger.GetStats back GET /admin/audit/events and
// GET /admin/audit/stats.
package audit
