package main

import "ais-diff-events/internal/cli"

func main() {
	cli.Execute()
}
