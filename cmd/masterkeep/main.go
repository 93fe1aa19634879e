package main

import "github.com/jmcleod/masterkeep/cmd/masterkeep/cmd"

func main() {
	cmd.Execute()
}
