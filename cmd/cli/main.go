package main

import (
	"os"

	"github.com/alderburg/Teste-sub007/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
