package main

import "morpho-rate-alerts/internal/cli"

func main() {
	cli.Execute()
}
