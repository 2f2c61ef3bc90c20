// Package httputil provides the request/response helpers and middleware
// shared by every watchlist HTTP handler.
//
// # Responses
//
// Successful responses are plain JSON; failures always carry a stable error
// kind from package apperr:
//
//	httputil.WriteSuccess(w, list)
//	httputil.WriteOK(w, map[string]interface{}{"status": "accepted"})
//	httputil.WriteAppError(w, r, apperr.ErrOwnerUnique)
//	// 403 {"error":"owner_unique"}
//
// Errors that are not *apperr.Error are logged and reported as server_error.
//
// # Requests
//
//	var req patchUserRequest
//	if err := httputil.DecodeAndValidate(r, &req); err != nil {
//		httputil.WriteAppError(w, r, err)
//		return
//	}
//	limit := httputil.ParseQueryClamped(r, "limit", 20, 1, 50)
//
// # Middleware
//
//	cors := httputil.NewCORS(cfg.Server.CORSOrigins)
//	router.Use(httputil.RequestIDMiddleware, httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware, cors.Middleware)
//
// CORS origins can be replaced at runtime with cors.Set.
package httputil
