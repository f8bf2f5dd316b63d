package main

import (
	"context"

	"wikisnap/cmd/wikisnap/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
