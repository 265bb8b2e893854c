package main

import "texttools/cmd"

func main() {
	cmd.Execute()
}
