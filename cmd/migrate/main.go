package main

import (
	"errors"
	"flag"
	"log"
	"os"

	"github.com/Jeffreasy/KoruFormsService/internal/config"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	dir := flag.String("dir", "migrations", "migrations directory")
	down := flag.Bool("down", false, "roll back one migration instead of applying all")
	flag.Parse()

	_ = godotenv.Load(".env.local")
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("Config invalid: %v", err)
	}

	m, err := migrate.New("file://"+*dir, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Migration init failed: %v", err)
	}
	defer m.Close()

	if *down {
		err = m.Steps(-1)
	} else {
		err = m.Up()
	}
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		log.Println("Database is up to date.")
	case err != nil:
		log.Fatalf("Migration failed: %v", err)
	default:
		log.Println("Migrations applied successfully!")
	}
}
