package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/halcyon-systems/driftvault/internal/mirror"
	"github.com/halcyon-systems/driftvault/internal/server"
	"github.com/halcyon-systems/driftvault/internal/swarm"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	dataDir := os.Getenv("DRIFTVAULT_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	cfg := server.DefaultConfig()
	if v := os.Getenv("DRIFTVAULT_MAX_UPLOAD"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			log.Fatalf("invalid DRIFTVAULT_MAX_UPLOAD: %v", err)
		}
		cfg.MaxUploadSize = n
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var obj mirror.ObjectStore
	if endpoint := os.Getenv("DRIFTVAULT_S3_ENDPOINT"); endpoint != "" {
		store, err := mirror.NewMinioStore(ctx, mirror.Config{
			Endpoint:  endpoint,
			AccessKey: os.Getenv("DRIFTVAULT_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("DRIFTVAULT_S3_SECRET_KEY"),
			Bucket:    os.Getenv("DRIFTVAULT_S3_BUCKET"),
			UseSSL:    os.Getenv("DRIFTVAULT_S3_USE_SSL") != "false",
		})
		if err != nil {
			log.Fatalf("Failed to connect object store: %v", err)
		}
		obj = store
	} else {
		log.Println("[main] DRIFTVAULT_S3_ENDPOINT not set, mirroring disabled")
	}

	srv, err := server.New(dataDir, swarm.NewSeeder(nil), obj, cfg)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	n, err := srv.Store().Reseed(ctx)
	if err != nil {
		log.Fatalf("Failed to reseed uploads: %v", err)
	}
	log.Printf("[main] reseeded %d artifacts from %s", n, dataDir)

	go srv.Store().RunMirrorRetry(ctx, cfg.MirrorRetryGap)

	// Graceful shutdown on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	fmt.Printf("Driftvault pinning server on http://localhost:%s\n", port)
	log.Fatal(http.ListenAndServe(":"+port, srv))
}
