package main

import "tonight-api/cmd/server/cmd"

func main() {
	cmd.Execute()
}
