package main

import "github.com/rvalente/taskspace/cmd/taskspace/cmd"

func main() {
	cmd.Execute()
}
