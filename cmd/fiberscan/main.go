package main

import "fiberscan/internal/cli"

func main() {
	cli.Execute()
}
