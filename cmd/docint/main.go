package main

import "github.com/SAMithila/doc-intelligence/internal/cli"

func main() {
	cli.Execute()
}
