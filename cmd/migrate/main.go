package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/db"
)

const usage = "usage: migrate [up|down|version|force <version>]"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.PostgresDSN == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	cmd := "up"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
	}

	mg, err := db.NewMigrator(cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("create migrator: %v", err)
	}
	defer func() { _ = mg.Close() }()

	switch cmd {
	case "up":
		if err := mg.Up(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("migrations complete")
	case "down":
		if err := mg.Down(); err != nil {
			log.Fatal(err)
		}
		fmt.Println("migrations rolled back")
	case "version":
		v, dirty, err := mg.Version()
		if err != nil {
			log.Fatalf("read version: %v", err)
		}
		fmt.Printf("version=%d dirty=%t\n", v, dirty)
	case "force":
		if len(os.Args) < 3 {
			log.Fatal(usage)
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("invalid version: %v", err)
		}
		if err := mg.Force(version); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("forced version to %d\n", version)
	default:
		log.Fatal(usage)
	}
}
