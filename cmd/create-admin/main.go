// Package main создаёт учётную запись администратора портала.
package main

import (
	"context"
	"flag"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap"

	"github.com/mmeshcher/housing-queue/internal/config"
	"github.com/mmeshcher/housing-queue/internal/notify"
	"github.com/mmeshcher/housing-queue/internal/repository"
	"github.com/mmeshcher/housing-queue/internal/service"
)

type adminConfig struct {
	DatabaseURI string `env:"DATABASE_URI"`
}

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := config.LoadEnvFile(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	cfg := adminConfig{}
	iin := flag.String("iin", "", "administrator IIN")
	name := flag.String("name", "Administrator", "administrator full name")
	password := flag.String("password", "", "administrator password")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.Parse()

	if err := env.Parse(&cfg); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if cfg.DatabaseURI == "" {
		sugar.Fatal("database URI is required")
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, notify.Nop{}, logger)
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	id, err := svc.CreateAdmin(ctx, *iin, *name, *password)
	if err != nil {
		sugar.Fatalw("create admin error", "error", err.Error(), "iin", *iin)
	}

	sugar.Infow("administrator created", "id", id, "iin", *iin)
}
