package main

import (
	cmd "github.com/clearcut-studio/studio-server/cmd/studio"
)

func main() {
	cmd.Execute()
}
