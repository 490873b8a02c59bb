package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"craftpanel.org/internal/auth"
	"craftpanel.org/internal/config"
	"craftpanel.org/internal/httpapi"
	"craftpanel.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

const purgeInterval = time.Hour

func main() {
	configPath := flag.String("config", os.Getenv("CRAFTPANEL_CONFIG"), "path to YAML config")
	flag.Parse()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := auth.Open(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	codec, err := auth.NewTokenCodec(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.AccessTTL())
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}
	svc, err := auth.NewService(store, codec,
		auth.WithHashScheme(auth.HashScheme(cfg.Auth.HashScheme)),
		auth.WithDemoMode(cfg.Auth.DemoMode),
	)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.EnsureSeed(seedCtx, ladderFromSeed(cfg.Seed)); err != nil {
		seedCancel()
		log.Fatalf("seed: %v", err)
	}
	seedCancel()

	api := httpapi.New(svc, httpapi.ReadyProbe{DB: store.DB()}, version, cfg.RateLimit.Burst, cfg.RateLimit.PerSecond)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting craftpanel-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Optional gRPC health endpoint for launcher-side probing.
	var grpcSrv *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		healthSrv := health.NewServer()
		healthSrv.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
		grpc_health_v1.RegisterHealthServer(grpcSrv, healthSrv)
		go func() {
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	// Background sweep of blacklist entries whose tokens expired on their own.
	purgeStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(purgeInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if n, err := svc.PurgeRevoked(ctx); err != nil {
					log.Printf("purge revoked: %v", err)
				} else if n > 0 {
					log.Printf("purged %d expired blacklist entries", n)
				}
				cancel()
			case <-purgeStop:
				return
			}
		}
	}()

	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	close(purgeStop)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	_ = store.Close()
	log.Println("Stopped")
}

func ladderFromSeed(seed config.Seed) auth.Ladder {
	ladder := auth.Ladder{
		Groups:      make([]auth.LadderGroup, 0, len(seed.Groups)),
		Permissions: make([]auth.LadderPermission, 0, len(seed.Permissions)),
	}
	for _, g := range seed.Groups {
		ladder.Groups = append(ladder.Groups, auth.LadderGroup{Name: g.Name, Level: g.Level, Default: g.Default})
	}
	for _, p := range seed.Permissions {
		ladder.Permissions = append(ladder.Permissions, auth.LadderPermission{Name: p.Name, Category: p.Category, Level: p.Level})
	}
	return ladder
}
