package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Connect opens a PostgreSQL connection through the pgx stdlib driver and
// pings it with retries so the service survives a database that is still
// starting up.
func Connect(databaseURL string) (*sql.DB, error) {
	var conn *sql.DB
	var err error

	for i := 0; i < 30; i++ {
		conn, err = sql.Open("pgx", databaseURL)
		if err != nil {
			log.Printf("Failed to open database: %v, retrying in 2s...", err)
			time.Sleep(2 * time.Second)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = conn.PingContext(ctx)
		cancel()
		if err == nil {
			log.Println("Successfully connected to the database!")
			return conn, nil
		}

		log.Printf("Failed to ping database: %v, retrying in 2s...", err)
		time.Sleep(2 * time.Second)
	}

	return nil, fmt.Errorf("could not connect to database after 30 attempts: %w", err)
}
