// Package httpapi is the JSON surface served by cmd/volcanion-authd.
//
// Routes:
//
//	POST /v1/auth/login                  {"email","password"}
//	POST /v1/auth/refresh                {"refresh_token"}
//	POST /v1/auth/logout                 {"refresh_token"}
//	POST /v1/auth/logout-all             bearer
//	POST /v1/password-reset/request      {"email"}
//	POST /v1/password-reset/confirm      {"token","new_password"}
//	POST /v1/email-verification/request  bearer
//	POST /v1/email-verification/confirm  {"token"}
//	GET  /v1/me                          bearer
//	GET  /healthz
//	GET  /metrics
//
// Errors are {"error": "<kind>"} where kind is volcanion.Kind.String.
package httpapi
