package main

import (
	"os"

	"modelconv/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
