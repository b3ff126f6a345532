package main

import (
	"os"

	"github.com/leofalp/qianfan/cmd/qianfan/commands"
)

var version = "dev"

func main() {
	if err := commands.Execute(version); err != nil {
		os.Exit(1)
	}
}
