package main

import "github.com/strrl/statement-agent/internal/cmd"

func main() {
	cmd.Execute()
}
