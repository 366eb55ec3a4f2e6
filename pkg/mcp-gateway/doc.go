// Package mcpgateway re-exports the tools and prompts of every registered
// backend through one Streamable HTTP MCP endpoint. Names are namespaced by
// server id, and every forwarded call goes through the connection manager so
// lazy connection and eviction behave exactly as they do for the dashboard's
// own requests.
package mcpgateway
