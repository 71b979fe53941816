package main

import (
	"fmt"
	"os"

	"privmail/backend/internal/auth"
	"privmail/backend/internal/config"
	"privmail/backend/internal/domain"
	"privmail/backend/internal/storage/memory"
	"privmail/backend/internal/storage/postgres"
	sqlstore "privmail/backend/internal/storage/sql"

	"go.uber.org/zap"
)

// create-admin 创建一个管理员账号，存储后端由配置决定。
func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: create-admin <name> <email> <password>")
		os.Exit(1)
	}

	name := os.Args[1]
	email := os.Args[2]
	password := os.Args[3]

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := openStore(cfg)
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	authService := auth.NewService(store)
	account, err := authService.Register(auth.RegisterInput{
		Name:     name,
		Email:    email,
		Password: password,
	})
	if err != nil {
		fmt.Printf("Failed to create account: %v\n", err)
		os.Exit(1)
	}

	account.IsModerator = true
	account.IsGold = true
	if err := store.UpdateAccount(account); err != nil {
		fmt.Printf("Failed to grant moderator role: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Moderator account created: %s (%s)\n", account.Name, account.ID)
}

func openStore(cfg *config.Config) (domain.Store, error) {
	log := zap.NewNop()
	switch cfg.Database.Type {
	case "postgres":
		return sqlstore.NewStore(cfg.Database.DSN)
	case "mysql":
		return sqlstore.NewMySQLStore(cfg.Database.DSN)
	case "pgx":
		client, err := postgres.NewClient(postgres.ClientConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		}, log)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(client)
	case "":
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown database type: %q", cfg.Database.Type)
	}
}
