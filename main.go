package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	// .env is optional; deployments set the environment directly.
	_ = godotenv.Load()
	setupLogging()

	cfg := LoadConfig()
	db, err := OpenDB(cfg.DSN)
	if err != nil {
		slog.Error("falha ao conectar no banco", "err", err)
		os.Exit(1)
	}

	// Support a lightweight migrate command: `./salc migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		Migrate(db)
		Seed(db)
		fmt.Println("migration and seeding completed")
		return
	}

	if cfg.AutoMigrate {
		Migrate(db)
		Seed(db)
	}

	app := NewApp(cfg, db)
	r := gin.Default()
	app.setupRoutes(r)

	slog.Info("SALC no ar", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		slog.Error("servidor encerrou com erro", "err", err)
		os.Exit(1)
	}
}
