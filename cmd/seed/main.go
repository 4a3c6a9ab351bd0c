// Package main implements a one-shot seed command that creates an
// operator user directly in the relaycore database. It lives inside the
// module so it can access internal/* packages.
//
// Usage:
//
//	go run ./cmd/seed \
//	  --email admin@test.com \
//	  --password secret \
//	  --name "Admin User" \
//	  --role admin
//
// Environment variables:
//
//	RELAYCORE_DB_DRIVER   Database driver, sqlite or postgres (default: sqlite)
//	RELAYCORE_DB_DSN      SQLite file path or Postgres DSN (default: ./relaycore.db)
//	RELAYCORE_SECRET_KEY  Master encryption key — must match the value used by the server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/repository"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─── Flags ────────────────────────────────────────────────────────────────

	email := flag.String("email", "", "Operator email (required)")
	password := flag.String("password", "", "Plain-text password (required)")
	name := flag.String("name", "Admin User", "Display name")
	role := flag.String("role", "admin", "Role: admin or user")
	orgName := flag.String("org", "Default Organization", "Name of the organization to create alongside the operator, if one doesn't already exist")
	flag.Parse()

	if *email == "" {
		return fmt.Errorf("--email is required")
	}
	if *password == "" {
		return fmt.Errorf("--password is required")
	}
	if *role != "admin" && *role != "user" {
		return fmt.Errorf("--role must be 'admin' or 'user'")
	}

	// ─── Config ───────────────────────────────────────────────────────────────

	dsn := envOrDefault("RELAYCORE_DB_DSN", "./relaycore.db")

	secretKey := os.Getenv("RELAYCORE_SECRET_KEY")
	if secretKey == "" {
		return fmt.Errorf(
			"RELAYCORE_SECRET_KEY is not set\n" +
				"  Set it to the same value used by the server, otherwise the\n" +
				"  encrypted password will be unreadable at login time.",
		)
	}

	// ─── Encryption ───────────────────────────────────────────────────────────

	// InitEncryption must be called before any DB operation so that
	// EncryptedString fields are encoded correctly on write.
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("init encryption: %w", err)
	}

	// ─── Database ─────────────────────────────────────────────────────────────

	logger, _ := zap.NewDevelopment()

	database, err := db.New(db.Config{
		Driver:   envOrDefault("RELAYCORE_DB_DRIVER", "sqlite"),
		DSN:      dsn,
		Logger:   logger,
		LogLevel: gormlogger.Silent, // suppress GORM query logs in seed output
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// ─── Organization ─────────────────────────────────────────────────────────

	orgRepo := repositories.NewOrganizationRepository(database)

	orgs, _, err := orgRepo.List(context.Background(), repositories.ListOptions{Limit: 1})
	if err != nil {
		return fmt.Errorf("list organizations: %w", err)
	}

	var org *db.Organization
	if len(orgs) > 0 {
		org = &orgs[0]
	} else {
		org = &db.Organization{Name: *orgName}
		if err := orgRepo.Create(context.Background(), org); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		fmt.Printf("✓ Organization created: %s (%s)\n", org.Name, org.ID)
	}

	// ─── Hash password ────────────────────────────────────────────────────────

	hashed, err := auth.HashPassword(*password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	// ─── Create operator ──────────────────────────────────────────────────────

	userRepo := repository.NewUserRepository(database)

	user := &db.User{
		Email:       *email,
		DisplayName: *name,
		Password:    db.EncryptedString(hashed),
		Role:        *role,
		IsActive:    true,
	}

	if err := userRepo.Create(context.Background(), user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("an operator with email %q already exists", *email)
		}
		return fmt.Errorf("create operator: %w", err)
	}

	fmt.Printf("✓ Operator created\n")
	fmt.Printf("  ID:    %s\n", user.ID)
	fmt.Printf("  Email: %s\n", user.Email)
	fmt.Printf("  Name:  %s\n", user.DisplayName)
	fmt.Printf("  Role:  %s\n", user.Role)
	fmt.Printf("  Org:   %s (%s)\n", org.Name, org.ID)

	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
