package main

import (
	"os"

	"batch-delete/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
