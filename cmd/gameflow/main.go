package main

import "github.com/playforge/gameflow/cmd/gameflow/cmd"

func main() {
	cmd.Execute()
}
