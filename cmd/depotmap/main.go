package main

import "github.com/DrSkyle/depotmap/cmd/depotmap/commands"

func main() {
	commands.Execute()
}
