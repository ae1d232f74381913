// Package app wires the alarm engine together and runs it until a signal
// arrives.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Raimguzhinov/alarmd/internal/alarm"
	"github.com/Raimguzhinov/alarmd/internal/alarm/db"
	"github.com/Raimguzhinov/alarmd/internal/code"
	codegrpc "github.com/Raimguzhinov/alarmd/internal/code/grpc"
	"github.com/Raimguzhinov/alarmd/internal/config"
	v1 "github.com/Raimguzhinov/alarmd/internal/delivery/http/v1"
	"github.com/Raimguzhinov/alarmd/internal/dismissal"
	"github.com/Raimguzhinov/alarmd/internal/scheduler"
	"github.com/Raimguzhinov/alarmd/internal/timing"
	"github.com/Raimguzhinov/alarmd/pkg/httpserver"
	"github.com/Raimguzhinov/alarmd/pkg/logger"
	"github.com/Raimguzhinov/alarmd/pkg/postgres"
	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func Run(cfg *config.Config) error {
	l := logger.New(cfg.Log.Level, cfg.App.Env)
	l.Info("starting", "name", cfg.App.Name, "version", cfg.App.Version, "env", cfg.App.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clk := clock.New()
	loc := cfg.Alarm.Location()

	// Storage
	store, err := db.NewFromURL(ctx, cfg.Storage.URL, l,
		postgres.MaxPoolSize(cfg.PG.PoolMax),
		postgres.ConnAttempts(cfg.PG.ConnAttempts),
		postgres.ConnTimeout(cfg.PG.ConnTimeout),
	)
	if err != nil {
		return fmt.Errorf("app - Run - db.NewFromURL: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			l.Error("app - Run - store.Close", logger.Err(err))
		}
	}()

	// Scheduling
	platform := scheduler.NewLocalPlatform(clk, loc, l)
	sched := scheduler.New(platform, loc, clk, l)
	alarms := alarm.NewRepository(store, sched, clk, l)

	pending, err := sched.Pending(ctx)
	if err != nil {
		return fmt.Errorf("app - Run - sched.Pending: %w", err)
	}
	if _, err := alarms.Reconcile(ctx, pending); err != nil {
		l.Warn("app - Run - alarms.Reconcile", logger.Err(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	// Code service
	var gs *grpc.Server
	if cfg.GRPC.Enabled {
		lis, err := net.Listen("tcp", net.JoinHostPort(cfg.GRPC.IP, cfg.GRPC.Port))
		if err != nil {
			return fmt.Errorf("app - Run - net.Listen: %w", err)
		}
		gs = grpc.NewServer()
		codegrpc.Register(gs, codegrpc.New(code.Local{}, cfg.Code.Latency, l))
		g.Go(func() error {
			l.Info("code service listening", "addr", lis.Addr().String())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("app - Run - grpc.Serve: %w", err)
			}
			return nil
		})
	}

	genOpts := []code.Option{code.WithTimeout(cfg.Code.Timeout)}
	if cfg.Code.RemoteAddr != "" {
		remote, conn, err := code.DialRemote(cfg.Code.RemoteAddr)
		if err != nil {
			return fmt.Errorf("app - Run - code.DialRemote: %w", err)
		}
		defer conn.Close()
		genOpts = append(genOpts, code.WithPrimary(remote))
	}
	codes := code.NewGenerator(clk, l, genOpts...)

	// Dismissal
	device := dismissal.NewLogDevice(l)
	sessions := dismissal.NewManager(alarms, codes, device, device, clk, dismissal.Config{
		DefaultSound:     cfg.Alarm.DefaultSound,
		VibrationPattern: cfg.Alarm.VibrationPattern(),
	}, l.Component("dismissal"))

	dispatcher := timing.NewDispatcher(
		alarms,
		timing.LauncherFunc(func(ctx context.Context, a alarm.Alarm) error {
			_, err := sessions.Launch(ctx, a.ID)
			return err
		}),
		timing.NewValidator(cfg.Alarm.Tolerance, loc),
		timing.NewInFlight(clk, cfg.Alarm.InFlightTTL, cfg.Alarm.InFlightCapacity),
		clk,
		l,
	)
	unlisten := dispatcher.Listen(ctx, platform)
	defer unlisten()

	// HTTP Server
	handler := chi.NewRouter()
	v1.NewRouter(handler, v1.Deps{
		Alarms:        alarms,
		Sessions:      sessions,
		Notifications: dispatcher,
		Clock:         clk,
		Location:      loc,
		CORS: cors.Options{
			AllowedOrigins:     cfg.HTTP.CORS.AllowedOrigins,
			AllowedMethods:     cfg.HTTP.CORS.AllowedMethods,
			AllowedHeaders:     cfg.HTTP.CORS.AllowedHeaders,
			ExposedHeaders:     cfg.HTTP.CORS.ExposedHeaders,
			AllowCredentials:   cfg.HTTP.CORS.AllowCredentials,
			OptionsPassthrough: cfg.HTTP.CORS.OptionsPassthrough,
			Debug:              cfg.HTTP.CORS.Debug,
		},
	}, l)

	httpServer := httpserver.New(handler,
		httpserver.Address(cfg.HTTP.IP, cfg.HTTP.Port),
		httpserver.ReadTimeout(cfg.HTTP.Timeout),
		httpserver.WriteTimeout(cfg.HTTP.Timeout),
		httpserver.IdleTimeout(cfg.HTTP.IdleTimout),
		httpserver.ShutdownTimeout(cfg.HTTP.ShutdownTimeout),
	)
	l.Info("http server listening", "addr", net.JoinHostPort(cfg.HTTP.IP, cfg.HTTP.Port))

	// Waiting signal
	var runErr error
	select {
	case <-ctx.Done():
		l.Info("app - Run - signal received")
	case err := <-httpServer.Notify():
		runErr = fmt.Errorf("app - Run - httpServer.Notify: %w", err)
		l.Error("app - Run - httpServer.Notify", logger.Err(err))
	case <-gctx.Done():
		l.Error("app - Run - code service stopped")
	}

	// Shutdown
	if err := httpServer.Shutdown(); err != nil {
		l.Error("app - Run - httpServer.Shutdown", logger.Err(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout+5*time.Second)
	defer cancel()
	if err := sessions.Shutdown(shutdownCtx); err != nil {
		l.Error("app - Run - sessions.Shutdown", logger.Err(err))
	}

	if gs != nil {
		gs.GracefulStop()
	}
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
