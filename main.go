package main

import "github.com/klytics/xla/cmd"

func main() {
	cmd.Execute()
}
