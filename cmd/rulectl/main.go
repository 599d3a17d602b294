package main

import (
	"fmt"
	"os"

	"verifier/internal/rulectl"
)

var version = "dev"

func main() {
	if err := rulectl.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
