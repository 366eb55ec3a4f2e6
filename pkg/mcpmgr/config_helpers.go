package mcpmgr

// Lightweight helpers for branching on a ServerConfig's transport without a
// switch at every call site.

// TransportOf returns the transport kind for cfg, or "" when it is unknown.
func TransportOf(cfg ServerConfig) TransportKind {
	switch cfg.Transport {
	case TransportSubprocess, TransportNetwork:
		return cfg.Transport
	default:
		return ""
	}
}

// IsSubprocess reports whether cfg launches a child process.
func IsSubprocess(cfg ServerConfig) bool {
	return cfg.Transport == TransportSubprocess
}

// IsNetwork reports whether cfg dials a remote endpoint.
func IsNetwork(cfg ServerConfig) bool {
	return cfg.Transport == TransportNetwork
}

// ParseTransportKind maps the spellings accepted in configuration files onto a
// TransportKind. The second result is false for unrecognized values.
func ParseTransportKind(s string) (TransportKind, bool) {
	switch s {
	case "subprocess", "stdio", "command":
		return TransportSubprocess, true
	case "network", "http", "streamable", "sse":
		return TransportNetwork, true
	default:
		return "", false
	}
}
