package main

import (
	"database/sql"
	"fmt"
	"log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/senecalabs/seneca-accounts/config"
	"github.com/senecalabs/seneca-accounts/pkg/helpers"
)

// The conflict target must name the expression of the unique index on
// accounts, which is lower(email), not the bare column.
const upsertAccountQuery = `
	INSERT INTO accounts (email, password_hash, first_name, last_name, is_active)
	VALUES ($1, $2, $3, $4, TRUE)
	ON CONFLICT ((lower(email))) DO UPDATE SET is_active = TRUE
	RETURNING id
`

func seedAccount(db *sql.DB, email, passwordHash, firstName, lastName string) (string, error) {
	var id string
	err := db.QueryRow(upsertAccountQuery, email, passwordHash, firstName, lastName).Scan(&id)
	return id, err
}

// Seeds a pre-activated demo account for local development, so login works
// without going through the activation email flow.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := sql.Open("pgx", cfg.PostgresDSN())
	if err != nil {
		log.Fatalf("failed to open db: %v", err)
	}
	defer func() { _ = db.Close() }()

	email := "demo@seneca-accounts.local"
	password := "password123"
	hash, err := helpers.HashPassword(password, cfg.BcryptCost)
	if err != nil {
		log.Fatalf("failed to hash password: %v", err)
	}

	id, err := seedAccount(db, email, hash, "Demo", "Account")
	if err != nil {
		log.Fatalf("failed to seed account: %v", err)
	}
	fmt.Printf("seeded account: id=%s email=%s password=%s\n", id, email, password)
}
