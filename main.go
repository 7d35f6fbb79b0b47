package main

import "github.com/theirongolddev/bunqday/cmd"

func main() {
	cmd.Execute()
}
