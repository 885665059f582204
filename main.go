package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lumiohq/syncstack/config"
	"github.com/lumiohq/syncstack/internal/database"
	"github.com/lumiohq/syncstack/internal/repository"
	"github.com/lumiohq/syncstack/server"
)

func main() {
	app := &cli.App{
		Name:  "syncstack",
		Usage: "integration resilience layer for provider syncs and webhooks",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: runMigrations,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: runServer,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runMigrations(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	if err := repository.MigrateDB(cfg.DatabaseConfig, db); err != nil {
		return err
	}

	log.Println("Database migration completed successfully")
	return nil
}

func runServer(c *cli.Context) error {
	cfg, err := config.InitConfig()
	if err != nil {
		return err
	}

	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("SyncStack starting up...")

	db, err := database.NewConnection(cfg.DatabaseConfig)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(cfg, db)
	if err != nil {
		return err
	}

	if err := srv.Run(); err != nil {
		return err
	}

	log.Println("Shutdown complete")
	return nil
}
