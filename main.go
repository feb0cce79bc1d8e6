package main

import "script-patcher/internal/cli"

func main() {
	cli.Execute()
}
