package main

import "github.com/materials-commons/mcsync/cmd/mcsyncd/cmd"

func main() {
	cmd.Execute()
}
