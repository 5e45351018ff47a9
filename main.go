package main

import "restore-manager/cmd"

func main() {
	cmd.Execute()
}
