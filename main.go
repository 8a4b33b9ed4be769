package main

import "github.com/fulmenhq/offlinegen/cmd"

func main() {
	cmd.Execute()
}
