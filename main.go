// voxrelay - a realtime TTS websocket client and a word-paced chat relay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voxrelay/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		os.Exit(1)
	}
}
