package main

import "github.com/lieberdev/hostd/internal/cmd"

func main() {
	cmd.Execute()
}
