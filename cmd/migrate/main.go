package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	listOnly := flag.Bool("list", false, "list governance tables and applied migrations, then exit")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}
	dir := "migrations"
	if flag.NArg() > 0 {
		dir = flag.Arg(0)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	log.Println("Connected to database")

	m := &migrator{db: db}
	if *listOnly {
		tables, err := m.tables(ctx)
		if err != nil {
			log.Fatal(err)
		}
		for _, t := range tables {
			fmt.Println(" ", t)
		}
		fmt.Printf("Total: %d tables\n", len(tables))
		return
	}

	files, err := pending(dir)
	if err != nil {
		log.Fatal(err)
	}
	applied, skipped, err := m.apply(ctx, files)
	log.Printf("Done: %d applied, %d already applied", applied, skipped)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("Migrations complete")
}
