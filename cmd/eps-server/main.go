package main

import (
	"fmt"
	"os"

	"github.com/danyguancha/soft-eps-v2-sub000/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
