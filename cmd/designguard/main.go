package main

import "github.com/OpenTraceLab/designguard/cmd/designguard/cmd"

func main() {
	cmd.Execute()
}
