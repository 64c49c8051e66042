package main

import "github.com/deploymenttheory/go-tinyfs/cmd"

func main() {
	cmd.Execute()
}
