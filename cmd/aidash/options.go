package main

import (
	"time"

	"go.uber.org/zap"
)

// Options are the aidash command-line flags.
type Options struct {
	Config          string        `short:"c" long:"config" description:"YAML file listing servers and actions" required:"true"`
	Addr            string        `short:"a" long:"addr" description:"HTTP listen address" default:":8080"`
	CORSOrigins     []string      `long:"cors-origin" description:"origin allowed to call the API (repeatable)"`
	Gateway         bool          `long:"gateway" description:"also expose every backend through one MCP endpoint"`
	GatewayPath     string        `long:"gateway-path" description:"path of the MCP endpoint" default:"/mcp"`
	GatewayToken    string        `long:"gateway-token" env:"AIDASH_GATEWAY_TOKEN" description:"bearer token required by the MCP endpoint"`
	GatewaySync     time.Duration `long:"gateway-sync" description:"interval between gateway re-synchronizations (0 disables)" default:"0s"`
	ConnectTimeout  time.Duration `long:"connect-timeout" description:"default handshake timeout" default:"30s"`
	ShutdownTimeout time.Duration `long:"shutdown-timeout" description:"time allowed for draining requests and stopping backends" default:"10s"`
	LogLevel        string        `long:"log-level" description:"minimum log level" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error"`
	LogDev          bool          `long:"log-dev" description:"human-readable console logs"`
	LogJSONRPC      bool          `long:"log-json-rpc" description:"log every JSON-RPC message at debug level"`
}

func (o *Options) logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if o.LogDev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = level
	return cfg.Build()
}
