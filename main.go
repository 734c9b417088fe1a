package main

import "vnjp-connect/cmd"

func main() {
	cmd.Run()
}
