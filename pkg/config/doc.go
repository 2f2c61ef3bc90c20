// Package config loads watchlist configuration.
//
// Values come from, in increasing precedence: built-in defaults, the YAML
// file named by WATCHLIST_CONFIG_FILE, and WATCHLIST_* environment variables.
//
//	WATCHLIST_PORT="8080"
//	WATCHLIST_DATABASE_URL="postgres://..."
//	WATCHLIST_REDIS_URL="redis://localhost:6379/0"
//	WATCHLIST_IDENTITY_ISSUER_URL="https://auth.example.com/auth/v1"
//	WATCHLIST_IDENTITY_SERVICE_KEY="..."   # enables account deletion
//	WATCHLIST_LOG_LEVEL="debug"
//
// When a file is used, Watcher reloads it on change so the log level and CORS
// origins can be adjusted without a restart.
package config
