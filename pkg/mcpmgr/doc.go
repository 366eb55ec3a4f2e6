// Package mcpmgr owns the connections from the dashboard process to its
// backend tool servers. It resolves logical server ids through an immutable
// Registry, lazily establishes one Model Context Protocol session per id, and
// tears sessions down again on demand or when their transport breaks.
//
// # Core entry points
//
//   - Registry maps server ids to ServerConfig values. Build it with
//     NewRegistry, or from YAML with LoadRegistry / ParseRegistry.
//   - Manager caches sessions. GetConnection returns a live session,
//     creating it at most once at a time per id (concurrent callers share the
//     attempt). WithSession runs a function over that session and evicts it
//     when the transport turns out to be dead. Evict and Close release the
//     underlying processes and sockets.
//   - KindOf classifies any returned error into the ConfigNotFound,
//     Connection, TransportBroken, Remote and Canceled kinds.
//
// Subprocess servers are launched with their stdio piped to the session;
// network servers are dialled over Streamable HTTP with an SSE fallback. Each
// server's lifecycle follows the State machine
// Absent -> Connecting -> Connected -> Absent, with Failed as the outcome of an
// unsuccessful handshake.
package mcpmgr
