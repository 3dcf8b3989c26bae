package main

import "github.com/mselser95/gridbot/cmd"

func main() {
	cmd.Execute()
}
