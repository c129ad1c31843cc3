package main

import "demobook/cmd"

func main() {
	cmd.Execute()
}
