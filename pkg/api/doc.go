// Package api assembles the HTTP surface: the middleware chain, the domain
// route groups and the operational endpoints (/health, /metrics).
package api
