package main

import "github.com/killallgit/agentstream/cmd"

func main() {
	cmd.Execute()
}
