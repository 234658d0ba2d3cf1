package main

import "github.com/brensch/dumpstats/cmd"

func main() {
	cmd.Execute()
}
