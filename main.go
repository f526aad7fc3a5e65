package main

import (
	"fmt"
	"os"

	"doodleclass/cmd"
	"doodleclass/internal/store"
)

func main() {
	db, err := store.OpenDefaultDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate database: %v\n", err)
		os.Exit(1)
	}

	if err := cmd.Execute(db); err != nil {
		os.Exit(1)
	}
}
