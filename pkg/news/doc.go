// Package news serves the latest anime headlines from an RSS feed.
package news
