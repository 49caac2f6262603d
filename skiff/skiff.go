package main

import (
	"os"

	"github.com/sahib/skiff/cmd"
)

func main() {
	os.Exit(cmd.Run(os.Args))
}
