package main

import (
	"context"
	"tunnelflight/cmd/tunnelflight/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
