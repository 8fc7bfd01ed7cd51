package main

import "ratecard-service/internal/cli"

func main() {
	cli.Execute()
}
