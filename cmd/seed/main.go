package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"activation-platform/internal/config"
	"activation-platform/internal/domain/model"
	"activation-platform/internal/domain/ports/repository"
	pg "activation-platform/internal/infra/db/postgres"
	"activation-platform/internal/infra/db/sqlite"
	"activation-platform/internal/infra/logging"
	"activation-platform/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "", "path to YAML config file")
	count := flag.Int("count", 5, "number of demo codes to create")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.Load(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var repo repository.ActivationCodeRepository
	switch cfg.Database.Driver {
	case "postgres":
		if err := pg.RunMigrations(cfg.Database.URL, "up"); err != nil {
			log.Fatalf("migrations: %v", err)
		}
		pool, err := pg.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		repo = pg.NewActivationCodeRepo(pool)
	default:
		db, err := sqlite.Open(ctx, cfg.Database.SQLitePath, logger)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		defer db.Close()
		repo = sqlite.NewActivationCodeRepo(db.Conn())
	}

	// CleanupOnCreate stays off while seeding.
	uc := usecase.NewActivationCodeUseCase(repo, usecase.ActivationCodeOptions{Dev: true}, logger)

	stats, err := uc.Stats(ctx)
	if err != nil {
		log.Fatalf("stats: %v", err)
	}
	if stats.Total > 0 {
		fmt.Printf("%d codes already present (%d active). No changes.\n", stats.Total, stats.Active)
		return
	}

	seed := []struct {
		Product  string
		Features []string
		TTL      time.Duration
	}{
		{"Starter", []string{"basic"}, 30 * 24 * time.Hour},
		{"Pro", []string{"basic", "sync", "export"}, cfg.Activation.DefaultTTL()},
		{"Trial", []string{"basic"}, 24 * time.Hour},
	}

	for i := 0; i < *count; i++ {
		s := seed[i%len(seed)]
		c, err := uc.Create(ctx, usecase.CreateCodeInput{
			TTL:         s.TTL,
			Metadata:    map[string]any{"source": "seed", "n": i + 1},
			ProductInfo: &model.ProductInfo{Name: s.Product, Version: "1.0", Features: s.Features},
		})
		if err != nil {
			log.Fatalf("create code %d: %v", i+1, err)
		}
		fmt.Printf("seeded: %s (id=%s, product=%s, expires=%s)\n", c.Code, c.ID, s.Product, c.ExpiresAt.Format(time.RFC3339))
	}

	fmt.Println("Seeding complete.")
}
