// Package api serves the trapbridge read-only REST API.
//
//	GET /api/v1/health              daemon and collector state
//	GET /api/v1/rules               active rules in match order
//	GET /api/v1/queue               undelivered events, oldest first
//	GET /api/v1/sources             trap sources seen within the TTL
//	GET /api/v1/sources/{address}   one source
//
// Every endpoint answers JSON; other methods get 405.
package api
