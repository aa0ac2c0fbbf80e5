package main

import "github.com/Davincible/modelrelay/cmd"

func main() {
	cmd.Execute()
}
