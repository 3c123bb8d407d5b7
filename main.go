package main

import (
	"os"

	"ObjArchiver/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
