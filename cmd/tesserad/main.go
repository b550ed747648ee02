package main

import "github.com/tessera-dev/tessera/internal/cli"

func main() {
	cli.Execute()
}
