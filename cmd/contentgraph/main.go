// Command contentgraph operates a contentgraph database.
package main

import (
	"context"
	"os"

	"github.com/roach88/contentgraph/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
