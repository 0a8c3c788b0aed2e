// Package auth provides authentication middleware for the trapbridge API.
//
// APIKey(mode, header, key) wraps an http.Handler and validates the API key
// carried in the named request header. When mode != "apikey" or key == "",
// all requests pass through (useful for local development). A wrong or
// absent key is rejected with 401 Unauthorized.
package auth
