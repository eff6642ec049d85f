package main

import (
	"context"
	"netbank/cmd/netbank-cli/commands"
	"netbank/internal/components/osutil"
)

func main() {
	ctx, stop := osutil.SignalContext(context.Background())
	defer stop()
	commands.ExecuteContext(ctx)
}
