package main

import (
	"fmt"
	"os"

	"github.com/penwyp/tokencat/cmd"
	"github.com/penwyp/tokencat/models"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if models.IsUsageError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
