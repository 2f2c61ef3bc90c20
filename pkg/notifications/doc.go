// Package notifications stores per-member notifications, serves them to
// their recipient, and announces new ones on the Redis channel
// "notifications:<user_id>".
package notifications
