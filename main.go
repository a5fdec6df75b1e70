package main

import (
	"os"

	"github.com/abhisek/mathchat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
