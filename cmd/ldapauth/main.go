package main

import (
	"context"
	"os"

	"github.com/isometry/ldapauth/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
