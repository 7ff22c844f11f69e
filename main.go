package main

import "github.com/michrafnabil/facegate/cmd"

func main() {
	cmd.Execute()
}
