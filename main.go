package main

import (
	"ZenMix/cmd"
)

func main() {
	cmd.Execute()
}
