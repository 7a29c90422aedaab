package main

import (
	"errors"
	"log"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, errNotConverged) {
			os.Exit(2)
		}
		log.Fatalf("Error: %v\n", err)
	}
}
