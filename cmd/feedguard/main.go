package main

import (
	"github.com/feedguard/feedguard/internal/cli"
)

func main() {
	cli.Execute()
}
