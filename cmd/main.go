package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cwrk-planet/board-service/config"
	"github.com/cwrk-planet/board-service/internal/discovery"
	"github.com/cwrk-planet/board-service/internal/service"
	grpcx "github.com/cwrk-planet/board-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/board-service/internal/transport/http"
	"github.com/cwrk-planet/board-service/internal/transport/ws"
	"github.com/cwrk-planet/board-service/pkg/logger"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("board-service: %v", err)
	}
}

func run() error {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logger.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{
		Env:       logger.ParseEnv(cfg.Logging.Env),
		Service:   cfg.Logging.Service,
		Version:   cfg.Logging.Version,
		Backend:   logger.Backend(cfg.Logging.Backend),
		Level:     level,
		AddSource: cfg.Logging.AddSource,
	})
	slog.Info("starting board-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- storage ---
	repo, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("storage %s: %w", cfg.Storage.Driver, err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			slog.Warn("close storage", "err", err)
		}
	}()

	// --- services ---
	roomSvc := service.NewRoomService(repo,
		service.WithIdleTimeout(cfg.Rooms.IdleTimeout),
		service.WithInboxSize(cfg.Rooms.InboxSize),
	)
	defer roomSvc.Close()

	// --- WS Hub & Server ---
	hub := ws.NewHub()
	wsServer := ws.NewServer(hub, roomSvc, ws.Config{
		PingEvery:      cfg.WS.PingEvery,
		WriteWait:      cfg.WS.WriteWait,
		OpTimeout:      cfg.WS.OpTimeout,
		SendQueue:      cfg.WS.SendQueue,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		RateLimit:      cfg.WS.RateLimit,
		RateBurst:      cfg.WS.RateBurst,
		MaxViolations:  cfg.WS.MaxViolations,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	// --- HTTP ---
	handler := httpx.NewHandler(roomSvc, hub)
	router := httpx.NewRouter(handler, wsServer.HandleWS, httpx.RouterConfig{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		LogBodies:      cfg.HTTP.LogBodies,
		Timeout:        cfg.HTTP.RequestTimeout,
	})
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// --- gRPC ---
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcx.UnaryServerInterceptor(cfg.GRPC.Timeout)),
		grpc.ChainStreamInterceptor(grpcx.StreamServerInterceptor()),
	)
	grpcx.Register(grpcServer, grpcx.NewServer(roomSvc))

	// --- mDNS ---
	if cfg.MDNS.Enabled {
		port, err := portOf(cfg.HTTP.Addr)
		if err != nil {
			return fmt.Errorf("mdns: %w", err)
		}
		mdnsSrv, err := discovery.Advertise(cfg.MDNS.Instance, port, []string{"version=" + cfg.Logging.Version})
		if err != nil {
			return err
		}
		defer func() { _ = mdnsSrv.Shutdown() }()
		slog.Info("mdns advertised", "instance", cfg.MDNS.Instance, "port", port)
	}

	// --- run both servers ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http: %w", err)
		}
		return nil
	})

	if cfg.GRPC.Addr != "" {
		g.Go(func() error {
			lis, err := net.Listen("tcp", cfg.GRPC.Addr)
			if err != nil {
				return fmt.Errorf("grpc listen: %w", err)
			}
			slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
			return grpcServer.Serve(lis)
		})
	}

	// --- graceful shutdown ---
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		grpcServer.GracefulStop()
		return httpSrv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return err
	}
	slog.Info("stopped")
	return nil
}

func portOf(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(p)
}
