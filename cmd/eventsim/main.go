package main

import (
	"os"

	"github.com/danielpatrickdp/eventsim/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
