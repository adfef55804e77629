package main

import "github.com/LENAX/dataflow-engine/pkg/cli/cmd"

func main() {
	cmd.Execute()
}
