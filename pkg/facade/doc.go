// Package facade serves the dashboard's JSON API over HTTP. Every response
// body is an invoke.Envelope; the HTTP status code is derived from the
// envelope's failure kind.
//
// Routes:
//
//	GET  /api/mcp                               registered servers and their state
//	GET  /api/mcp/{serverId}?action=status|tools|prompts
//	POST /api/mcp/{serverId}?action=call-tool|get-prompt
//	POST /api/mcp/{serverId}/actions/{action}   configured tool shortcut
//	GET  /healthz
package facade
