package main

import "safi/cmd"

func main() {
	cmd.Execute()
}
