package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/modelcontextprotocol/go-sdk/auth"
	"go.uber.org/zap"

	"github.com/vikashloomba/mcp-dashboard-go/pkg/facade"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/invoke"
	mcpgateway "github.com/vikashloomba/mcp-dashboard-go/pkg/mcp-gateway"
	"github.com/vikashloomba/mcp-dashboard-go/pkg/mcpmgr"
)

// Run parses args, serves the dashboard API until ctx is done, and then shuts
// down every backend.
func Run(ctx context.Context, args []string) error {
	options := &Options{}
	if _, err := flags.ParseArgs(options, args); err != nil {
		var flagErr *flags.Error
		if errors.As(err, &flagErr) && flagErr.Type == flags.ErrHelp {
			return nil
		}
		return err
	}
	logger, err := options.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry, err := mcpmgr.LoadRegistry(options.Config)
	if err != nil {
		return err
	}
	actions, err := facade.LoadActions(options.Config)
	if err != nil {
		return err
	}

	manager := mcpmgr.NewManager(registry, &mcpmgr.ManagerOptions{
		ClientName:            "aidash",
		DefaultConnectTimeout: options.ConnectTimeout,
		LogJSONRPC:            options.LogJSONRPC,
		Logger:                logger,
	})
	invoker := invoke.NewInvoker(manager, &invoke.Options{Logger: logger})
	api := facade.New(invoker, manager, &facade.Options{
		AllowedOrigins: options.CORSOrigins,
		Actions:        actions,
		Logger:         logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if options.Gateway {
		gw, err := newGateway(runCtx, manager, options, logger)
		if err != nil {
			return err
		}
		api.Handle(gw.Path(), gw.Handler())
		api.Handle(gw.Path()+"/", gw.Handler())
		go gw.Run(runCtx)
		logger.Info("gateway enabled", zap.String("path", gw.Path()), zap.Int("tools", len(gw.ToolNames())))
	}

	srv := &http.Server{
		Addr:              options.Addr,
		Handler:           api,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("serving dashboard api",
		zap.String("addr", options.Addr),
		zap.Strings("servers", registry.IDs()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), options.ShutdownTimeout)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Warn("closing backends", zap.Error(err))
	}
	logger.Info("stopped")
	return serveErr
}

func newGateway(ctx context.Context, manager *mcpmgr.Manager, options *Options, logger *zap.Logger) (*mcpgateway.Gateway, error) {
	gwOpts := &mcpgateway.Options{
		Path:         options.GatewayPath,
		Logger:       logger,
		SyncInterval: options.GatewaySync,
	}
	if options.GatewayToken != "" {
		gwOpts.TokenVerifier = staticTokenVerifier(options.GatewayToken)
	}
	gw, err := mcpgateway.NewGateway(ctx, manager, gwOpts)
	if err != nil {
		return nil, fmt.Errorf("build gateway: %w", err)
	}
	return gw, nil
}

func staticTokenVerifier(expected string) auth.TokenVerifier {
	return func(_ context.Context, token string, _ *http.Request) (*auth.TokenInfo, error) {
		if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			return nil, auth.ErrInvalidToken
		}
		return &auth.TokenInfo{Expiration: time.Now().Add(time.Hour)}, nil
	}
}
