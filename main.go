package main

import "github.com/dcipher-network/dcipher/cmd"

func main() {
	cmd.Execute()
}
