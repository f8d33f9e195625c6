package main

import (
	"github.com/diegodella1/slackalerts/internal/cli"
)

func main() {
	cli.Execute()
}
