package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vbp1/magicwand/internal/cli"
	"github.com/vbp1/magicwand/internal/util/signalctx"
)

func main() {
	ctx, cancel := signalctx.WithSignals(context.Background())
	err := cli.Execute(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
