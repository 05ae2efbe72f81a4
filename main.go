package main

import "bigscreen/cmd"

func main() {
	cmd.Execute()
}
