package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"promptdeck.org/internal/accounts"
	"promptdeck.org/internal/auth"
	"promptdeck.org/internal/config"
	"promptdeck.org/internal/httpapi"
	"promptdeck.org/internal/obs"
	"promptdeck.org/internal/prompts"
	"promptdeck.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var (
		acctStore   accounts.Store
		promptStore prompts.Store
		readyProbe  httpapi.ReadyProbe
		pgStore     *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := pgStore.EnsureSchema(ctx); err != nil {
			cancel()
			log.Fatalf("ensure schema: %v", err)
		}
		cancel()
		acctStore = pgStore.Accounts()
		promptStore = pgStore.Prompts()
		readyProbe = httpapi.ReadyProbe{DB: pgStore.DB()}
		log.Printf("Using postgres store")
	} else {
		baseline := adminBaseline(cfg.Admin)
		acctStore = accounts.NewSnapshotStore(filepath.Join(cfg.DataDir, "accounts.json"), baseline)
		promptStore = prompts.NewSnapshotStore(filepath.Join(cfg.DataDir, "prompts.json"), nil)
		log.Printf("Using snapshot store in %s", cfg.DataDir)
	}

	acctSvc, err := accounts.NewService(acctStore, accounts.WithOwnedCounter(promptStore))
	if err != nil {
		log.Fatalf("accounts service: %v", err)
	}
	promptSvc, err := prompts.NewService(promptStore, acctSvc)
	if err != nil {
		log.Fatalf("prompts service: %v", err)
	}

	tokens, err := auth.NewTokens(cfg.Auth.Secret, cfg.Auth.Issuer,
		auth.WithTTL(time.Duration(cfg.Auth.TokenTTL)))
	if err != nil {
		log.Fatalf("tokens: %v", err)
	}
	resolver, err := auth.NewResolver(tokens, acctSvc)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	api := httpapi.New(readyProbe, version, acctSvc, promptSvc, tokens, resolver,
		httpapi.WithRateLimit(cfg.HTTP.RateBurst, cfg.HTTP.RatePerSec),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
	)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting promptdeck-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health endpoint for platform probes.
	var grpcSrv *grpc.Server
	healthSvc := health.NewServer()
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		healthpb.RegisterHealthServer(grpcSrv, healthSvc)
		healthSvc.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
		log.Printf("gRPC health on %s", cfg.GRPCAddr)
	}

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	healthSvc.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if pgStore != nil {
		_ = pgStore.Close()
	}
	log.Println("Stopped")
}

// adminBaseline builds the seed admin used the first time the service
// starts against an empty snapshot directory.
func adminBaseline(admin config.AdminConfig) []accounts.Account {
	password := admin.Password
	if password == "" {
		// No password means the bootstrap admin cannot log in until one
		// is set via PROMPTDECK_ADMIN_PASSWORD.
		log.Printf("warning: bootstrap admin has no password configured")
		return nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatalf("hash admin password: %v", err)
	}
	return accounts.Baseline(admin.Name, admin.Email, hash, time.Now().UTC())
}
