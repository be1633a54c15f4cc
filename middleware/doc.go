// Package middleware adapts [sessiongate.Engine] to net/http.
//
// [Guard] reads the bearer access token, calls Engine.Authorize and attaches
// the result to the request context. With [WithRiskCheck] it also parses the
// edge-proxy device headers and scores them through Engine.Touch, so a
// request that drifts past the reauth threshold is rejected on the spot.
//
// Rejections follow RFC 6750: 401 with a WWW-Authenticate challenge. A
// session held for re-authentication gets the
// insufficient_user_authentication error code from RFC 9470. Storage
// failures answer 503 rather than letting the request through.
//
// This package makes no decision of its own beyond mapping engine errors to
// status codes.
package middleware
