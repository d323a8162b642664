package main

import (
	"rwa-price-aggregator/internal/cli"
)

func main() {
	cli.Execute()
}
