package main

import "github.com/datalift/bulkvault/cmd/bulkvault/cmd"

func main() {
	cmd.Execute()
}
