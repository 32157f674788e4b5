package main

import (
	"github.com/lexiqai/transcribe-client/cmd/transcribe/cmd"
)

func main() {
	cmd.Execute()
}
