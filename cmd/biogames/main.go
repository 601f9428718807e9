package main

import "github.com/mcoot/biogames-go/internal/cli"

func main() {
	cli.Execute()
}
