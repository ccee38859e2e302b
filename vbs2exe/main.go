package main

import "vbs2exe-tools/go/vbs2exe/cmd"

func main() {
	cmd.Execute()
}
