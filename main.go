package main

import "github.com/crystaldolphin/genlayer/cmd"

func main() {
	cmd.Execute()
}
