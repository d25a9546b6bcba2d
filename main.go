package main

import (
	"context"
	"os"

	"github.com/dkatz-labs/arbot/cmd"
	"github.com/dkatz-labs/arbot/utils"
)

func main() {
	defer utils.CleanupLogger()

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
