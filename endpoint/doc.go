// Package endpoint is the HTTP glue between clients and the albumauth
// Authority, built on gin.
//
// Public routes (mount on the internet-facing router):
//
//	POST /auth/refresh   rotate the presented refresh id
//	POST /auth/logout    revoke the family of the presented refresh id
//
// Internal routes (mount on a router reachable only by the login service and
// operators):
//
//	POST /auth/session                        start a family after login
//	POST /auth/members/:memberID/revoke       revoke every family of a member
//	GET  /auth/members/:memberID/families     list a member's families
//
// The refresh id travels in an HttpOnly cookie, or in a JSON body
// {"refresh_token": "..."} for clients without cookies.
package endpoint
