// Package catalog reads anime metadata from AniList: title search and the
// seasonal calendar.
package catalog
