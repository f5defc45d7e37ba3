package main

import "github.com/OpenTraceLab/vacfeed/cmd/vacfeed/cmd"

func main() {
	cmd.Execute()
}
