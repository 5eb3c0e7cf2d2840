package main

import (
	"os"

	"github.com/BRO3886/productsync/cmd/productsync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
