// seed provisions an admin account for local development.
// Idempotent: exits successfully if the email is already registered.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"exam-practice/backend/internal/config"
	"exam-practice/backend/internal/db"
	identityservice "exam-practice/backend/internal/identity/service"
	"exam-practice/backend/internal/security"
	userdomain "exam-practice/backend/internal/user/domain"
	userrepo "exam-practice/backend/internal/user/repository"
)

func main() {
	email := flag.String("email", "dev-admin@example.com", "admin email")
	name := flag.String("name", "Dev Admin", "display name")
	role := flag.String("role", string(userdomain.RoleSuperAdmin), "role: super_admin, admin or editor")
	password := flag.String("password", os.Getenv("SEED_ADMIN_PASSWORD"), "password (defaults to SEED_ADMIN_PASSWORD)")
	cost := flag.Int("bcrypt-cost", 12, "bcrypt cost")
	flag.Parse()

	if *password == "" {
		log.Fatal("seed: --password or SEED_ADMIN_PASSWORD is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, config.LoadDatabaseURL())
	if err != nil {
		log.Fatalf("seed: %v", err)
	}
	defer pool.Close()

	auth := identityservice.NewAuthService(userrepo.NewPostgresRepository(pool), nil, security.NewHasher(*cost))
	u, err := auth.CreateAdmin(ctx, *email, *password, *name, userdomain.Role(*role))
	if errors.Is(err, identityservice.ErrEmailAlreadyRegistered) {
		log.Printf("seed: %s already exists, skipping", *email)
		return
	}
	if err != nil {
		log.Fatalf("seed: create admin: %v", err)
	}
	log.Println("seed: completed")
	fmt.Printf("Admin login: %s (id %s, role %s)\n", u.Email, u.ID, u.Role)
}
