package main

import "github.com/slatecarbon/slatecarbon/cmd"

func main() {
	cmd.Execute()
}
