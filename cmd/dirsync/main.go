package main

import "github.com/lherron/dirsync/internal/cli"

func main() {
	cli.Execute()
}
