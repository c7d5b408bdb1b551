package main

import (
	"flag"
	"os"

	"github.com/Tyrowin/pairchat/cmd/chatctl/cmd"
)

func main() {
	flag.Parse()
	os.Exit(cmd.Run(flag.Args()))
}
