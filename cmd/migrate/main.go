// Command migrate applies or rolls back database migrations outside the
// server process, for deploys and local development.
package main

import (
	"fmt"
	"os"

	"github.com/marketbase/api/internal/config"
	"github.com/marketbase/api/internal/database"
)

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	cfg := config.Load()

	switch direction {
	case "up":
		if err := database.Migrate(cfg.DatabaseURL); err != nil {
			fmt.Fprintf(os.Stderr, "migrate up: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("migrations applied")
	case "down":
		if err := database.MigrateDown(cfg.DatabaseURL); err != nil {
			fmt.Fprintf(os.Stderr, "migrate down: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back one migration")
	default:
		fmt.Fprintf(os.Stderr, "usage: migrate [up|down]\n")
		os.Exit(2)
	}
}
