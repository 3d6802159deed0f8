package main

import (
	"os"

	"github.com/mlflowstone/mlflowstone/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
