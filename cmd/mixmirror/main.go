package main

import (
	"os"

	"mixmirror/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
