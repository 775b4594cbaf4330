package main

import (
	"fmt"
	"log"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"crashpilot/internal/database"
)

// Thin CLI over the migration helpers in internal/database. Connection
// parameters come from the same CRASHPILOT_DB_* environment the client uses.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	migrationsPath := os.Getenv("MIGRATIONS_PATH")
	if migrationsPath == "" {
		migrationsPath = "./migrations"
	}

	svc := database.New()
	defer svc.Close()

	switch os.Args[1] {
	case "up":
		if err := database.RunMigrations(svc.DB(), migrationsPath); err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		log.Println("migrations applied")

	case "down":
		if err := database.RollbackMigration(svc.DB(), migrationsPath); err != nil {
			log.Fatalf("rollback failed: %v", err)
		}
		log.Println("rolled back one migration")

	case "version":
		version, dirty, err := database.GetMigrationVersion(svc.DB(), migrationsPath)
		if err != nil {
			log.Fatalf("version lookup failed: %v", err)
		}
		if dirty {
			log.Printf("version %d (dirty, needs manual intervention)", version)
		} else {
			log.Printf("version %d", version)
		}

	default:
		log.Printf("unknown command: %s", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate up         apply all pending migrations")
	fmt.Println("  migrate down       roll back the last migration")
	fmt.Println("  migrate version    show the current schema version")
	fmt.Println()
	fmt.Println("Connection comes from CRASHPILOT_DB_* (see internal/database);")
	fmt.Println("MIGRATIONS_PATH overrides the ./migrations default.")
}
