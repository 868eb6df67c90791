package main

import "github.com/xerrors/Yuxi-Know/cmd"

func main() {
	cmd.Execute()
}
