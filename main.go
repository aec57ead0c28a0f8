package main

import "github.com/tilawa-app/tilawa/cmd"

func main() {
	cmd.Execute()
}
