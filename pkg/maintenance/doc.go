// Package maintenance holds the periodic cleanup jobs run by
// cmd/watchlist-maintenance: pruning read notifications, expiring group
// invitations and purging cancelled proposals.
package maintenance
