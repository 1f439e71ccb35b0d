// Command devtoken prints a signed bearer token for local testing against a
// server that shares its JWT secret.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vedran77/agroconnect/internal/auth"
	"github.com/vedran77/agroconnect/internal/config"
	"github.com/vedran77/agroconnect/internal/domain"
)

func main() {
	var (
		userID = flag.String("user", "", "user id (token subject)")
		name   = flag.String("name", "", "display name")
		role   = flag.String("role", string(domain.RoleFarmer), "farmer or shop_owner")
		ttl    = flag.Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	)
	flag.Parse()

	if err := run(*userID, *name, *role, *ttl); err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
}

func run(userID, name, roleName string, ttl time.Duration) error {
	if userID == "" || name == "" {
		return fmt.Errorf("-user and -name are required")
	}
	role, err := domain.ParseRole(roleName)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	token, err := auth.NewVerifier(cfg.JWTSecret).Issue(domain.Identity{
		UserID:      userID,
		DisplayName: name,
		Role:        role,
	}, ttl)
	if err != nil {
		return err
	}

	fmt.Println(token)
	return nil
}
