package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/kdimtricp/leafcheck/internal/config"
	"github.com/kdimtricp/leafcheck/internal/database"
)

func main() {
	var (
		dbPath         = flag.String("db", config.DefaultDBPath, "Path to the sqlite database")
		migrationsPath = flag.String("migrations", config.DefaultMigrationsPath, "Path to migrations directory")
		status         = flag.Bool("status", false, "Show migration status only")
	)
	flag.Parse()

	if env := os.Getenv("DB_PATH"); env != "" {
		*dbPath = env
	}
	if env := os.Getenv("MIGRATIONS_PATH"); env != "" {
		*migrationsPath = env
	}

	db, err := database.NewDB(database.Config{SQLitePath: *dbPath})
	if err != nil {
		log.Fatal("Failed to open database:", err)
	}
	defer db.Close()

	if !*status {
		fmt.Printf("Running migrations from %s against %s...\n", *migrationsPath, db.Path())
		if err := db.RunMigrations(*migrationsPath); err != nil {
			log.Fatal("Failed to run migrations:", err)
		}
		fmt.Println("Migrations completed successfully!")
		return
	}

	statuses, err := database.NewMigrator(db.Conn()).Status(*migrationsPath)
	if err != nil {
		log.Fatal("Failed to read migration status:", err)
	}

	fmt.Printf("Migration status for %s\n", db.Path())
	fmt.Println("=================")
	for _, s := range statuses {
		state := "pending"
		if s.Applied {
			state = "applied"
		}
		fmt.Printf("%s - %s [%s]\n", s.Version, s.Name, state)
	}
}
