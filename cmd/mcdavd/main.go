package main

import "github.com/materials-commons/mcsync/cmd/mcdavd/cmd"

func main() {
	cmd.Execute()
}
