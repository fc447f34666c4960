package main

import "github.com/q-controller/imaged/src/imaged/cmd"

func main() {
	cmd.Execute()
}
