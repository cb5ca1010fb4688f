package main

import (
	"os"

	"github.com/watchexec/watchexec/internal/commands"
)

// version is set via ldflags: -X main.version=v1.0.0
var version = "dev"

func main() {
	os.Exit(commands.Execute(version))
}
