package main

import (
	"os"

	"github.com/Builder-Lawyers/site-provisioner/cmd"
)

func main() {
	if err := cmd.Root().Execute(); err != nil {
		os.Exit(1)
	}
}
