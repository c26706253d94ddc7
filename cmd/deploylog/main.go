package main

import (
	"os"

	"github.com/deploylog/deploylog/internal/cli"
)

func main() {
	os.Exit(cli.ExitCode(cli.Execute()))
}
