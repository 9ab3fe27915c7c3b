package main

import (
	"chat-notify/auth"
	grpcserver "chat-notify/infrastructure/grpc/server"
	"chat-notify/infrastructure/http/server"
	"chat-notify/internal"
	"chat-notify/observability"
	"chat-notify/runtime"
	"chat-notify/runtime/workers"
	"chat-notify/services"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the notification server.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
	}
	os.Exit(code)
}

// run wires the store, the pipeline and the transports, and owns the shutdown order.
func run() (int, error) {
	// 1. Configuration & Logger
	config, err := internal.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	policy, err := runtime.ParseOverflowPolicy(config.BusOverflowPolicy)
	if err != nil {
		return exitConfig, err
	}
	verifier, err := auth.LoadVerifier(config.AuthPublicKeyPath, config.AuthIssuer, config.AuthAudience)
	if err != nil {
		return exitConfig, err
	}

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Store
	st, err := openStore(ctx, config, log)
	if err != nil {
		return exitRuntime, err
	}
	defer st.Close()

	// 4. Pipeline
	registry := runtime.NewRegistry()
	monitoring := observability.NewMonitoringManager(log)
	orchestrator := runtime.NewOrchestrator(log,
		workers.NewSupervisor(log, config.RestartInterval),
		registry,
		runtime.NewEventBus(log, config.BusCapacity, policy),
		st.feed, st.resolver, monitoring,
		runtime.PipelineConfig{
			Channels:                 config.Channels(),
			ReconnectInitialInterval: config.ReconnectInitialInterval,
			ReconnectMaxInterval:     config.ReconnectMaxInterval,
			ResolveTimeout:           config.ResolveTimeout,
			FanoutConcurrency:        config.FanoutConcurrency,
			MetricInterval:           config.MetricInterval,
		})

	health := grpcserver.NewHealthServer(log)
	orchestrator.AddReporter(health)

	if config.DebugPort > 0 {
		debug := internal.NewDebugServer(log, config.DebugPort, registry, func() any { return monitoring.GetLatest() })
		if st.db != nil {
			debug.WithBadger(st.db, nil)
		}
		orchestrator.Add(debug)
	}

	// 5. Transports
	srv := server.NewServer(log, registry, verifier, monitoring, server.Options{
		SessionBufferSize: config.SessionBufferSize,
		KeepAliveInterval: config.KeepAliveInterval,
	})
	if st.chats != nil {
		srv.WithChatService(services.NewChatService(st.chats))
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	grpcListener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		_ = listener.Close()
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}

	// Use an error channel to capture Serve() issues
	errChan := make(chan error, 3)
	pipelineDone := make(chan struct{})
	go func() {
		defer close(pipelineDone)
		if err := orchestrator.Start(ctx); err != nil {
			errChan <- fmt.Errorf("orchestrator failed to start: %w", err)
		}
	}()

	httpServer := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()
	go func() {
		if err := health.Serve(grpcListener); err != nil {
			errChan <- err
		}
	}()

	// 6. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
		log.Error("Shutting down after failure", "error", runErr)
	}

	// 7. Final Cleanup: stop producing, end the streams, then drain the servers.
	stop()
	orchestrator.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server did not drain in time", "error", err)
		_ = httpServer.Close()
	}
	health.Stop()

	select {
	case <-pipelineDone:
	case <-shutdownCtx.Done():
		log.Warn("Pipeline did not stop in time")
	}

	if runErr != nil {
		return exitRuntime, runErr
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
