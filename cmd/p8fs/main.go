package main

import (
	"fmt"
	"os"

	"github.com/p8fs/p8fs/cmd/p8fs/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
