package main

import "github.com/KaramelBytes/vizloom/cmd"

func main() {
	cmd.Execute()
}
