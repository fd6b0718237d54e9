package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopscout/shopscout/internal/config"
	"github.com/shopscout/shopscout/internal/models"
	"github.com/shopscout/shopscout/internal/repository"
	"github.com/shopscout/shopscout/internal/seed"
	"github.com/shopscout/shopscout/internal/server"
	"github.com/shopscout/shopscout/internal/storage"
)

func main() {
	// Load env if it exists
	godotenv.Load()

	cfg, err := config.Load("config.json")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	redis, err := storage.NewRedis(
		cfg.Redis.GetRedisAddr(),
		cfg.Redis.Password,
		cfg.Redis.DB,
	)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer redis.Close()

	log.Println("Connected to redis successfully")

	postgres, err := storage.NewPostgres(cfg.Postgres.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer postgres.Close()

	if err := postgres.AutoMigrate(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := seedDatabase(postgres); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	// Create server
	srv := server.New(cfg, redis, postgres)

	go func() {
		addr := ":" + cfg.Server.Port
		if err := srv.Run(addr); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}

// seedDatabase loads the embedded fallback stores and products. Seed rows
// never overwrite rows that a live provider already wrote.
func seedDatabase(postgres *storage.Postgres) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	storeRepo := repository.NewStoreRepository(postgres)
	productRepo := repository.NewProductRepository(postgres)

	stores, err := seed.Stores()
	if err != nil {
		return err
	}
	for _, s := range stores {
		existing, err := storeRepo.FindByIdentity(ctx, "seed", s.ExternalID)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		err = storeRepo.Upsert(ctx, &models.Store{
			Source:     "seed",
			ExternalID: s.ExternalID,
			Name:       s.Name,
			Lat:        s.Lat,
			Lon:        s.Lon,
			Tags:       models.TagMap(s.Tags),
		})
		if err != nil {
			return err
		}
	}

	products, err := seed.Products()
	if err != nil {
		return err
	}
	for _, p := range products {
		existing, err := productRepo.FindByUPC(ctx, p.UPC)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		err = productRepo.Upsert(ctx, &models.Product{
			UPC:       p.UPC,
			Source:    "seed",
			Name:      p.Name,
			Brand:     p.Brand,
			UpdatedAt: time.Now().UTC(),
		})
		if err != nil {
			return err
		}
	}

	log.Printf("Seed data loaded: %d stores, %d products", len(stores), len(products))
	return nil
}
