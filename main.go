package main

import "Resona/cmd"

func main() {
	cmd.Execute()
}
