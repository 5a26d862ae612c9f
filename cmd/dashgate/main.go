package main

import "github.com/dash-gate/dashgate/cmd/dashgate/cmd"

func main() {
	cmd.Execute()
}
