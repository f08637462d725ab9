package main

import (
	"errors"
	"io/fs"
	"log"

	"relay/cmd/internal/app"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
