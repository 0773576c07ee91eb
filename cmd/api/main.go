package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ekklesia.org/internal/auth"
	"ekklesia.org/internal/httpapi"
	"ekklesia.org/internal/obs"
	"ekklesia.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("EKKLESIA_PG_DSN")
	if dsn == "" {
		log.Fatal("missing EKKLESIA_PG_DSN")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	privPEM, err := keyMaterial("EKKLESIA_JWT_PRIVATE_KEY")
	if err != nil {
		log.Fatalf("private key: %v", err)
	}
	pubPEM, err := keyMaterial("EKKLESIA_JWT_PUBLIC_KEY")
	if err != nil {
		log.Fatalf("public key: %v", err)
	}

	opts := []auth.ServiceOption{auth.WithRS256Keys(privPEM, pubPEM)}
	if d := durationEnv("EKKLESIA_ACCESS_TTL"); d > 0 {
		opts = append(opts, auth.WithAccessTTL(d))
	}
	if d := durationEnv("EKKLESIA_REFRESH_TTL"); d > 0 {
		opts = append(opts, auth.WithRefreshTTL(d))
	}
	if issuer := os.Getenv("EKKLESIA_ISSUER"); issuer != "" {
		opts = append(opts, auth.WithIssuer(issuer))
	}

	svc, err := auth.NewService(store, opts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	bootCtx, bootCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := svc.EnsureBuiltins(bootCtx); err != nil {
		bootCancel()
		log.Fatalf("seed builtins: %v", err)
	}
	bootCancel()

	registry, err := auth.NewRegistry(store)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	api := httpapi.New(svc, registry, auth.NewGuard(), httpapi.ReadyProbe{DB: store.DB()}, version)

	addr := os.Getenv("EKKLESIA_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting ekklesia-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

// keyMaterial reads PEM content from NAME or a file named by NAME_FILE.
func keyMaterial(name string) (string, error) {
	if path := os.Getenv(name + "_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	v := os.Getenv(name)
	if v == "" {
		log.Fatalf("missing %s or %s_FILE", name, name)
	}
	return v, nil
}

func durationEnv(name string) time.Duration {
	v := os.Getenv(name)
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", name, err)
	}
	return d
}
