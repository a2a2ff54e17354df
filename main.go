package main

import "github.com/snapring/snapring/cmd"

func main() {
	cmd.Execute()
}
