package main

import (
	"context"
	"fmt"
	"os"

	"github.com/itish2003/docchat/cmd"
)

// version is set via ldflags at build time
var version = "dev"

func main() {
	if err := cmd.Execute(context.Background(), version); err != nil {
		fmt.Fprintf(os.Stderr, "docchat: %v\n", err)
		os.Exit(1)
	}
}
