// comfyagent runs reusable presets against a ComfyUI server.
//
// Usage:
//
//	comfyagent run <preset> [--n N] [--seed S|random] [--seed-step K] [--out dir] [--<param> value ...]
//	comfyagent list [--source local|remote|remote-catalog|all]
//	comfyagent preset show <name> [--source local|remote]
//	comfyagent status [--offline]
//	comfyagent import <workflow> --name <preset> [--force]
//
// Every command accepts --json, --global, --base-url, --log-level,
// --log-format and --metrics-file.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/richinsley/comfyagent/comfyerr"
	"github.com/richinsley/comfyagent/internal/xjson"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		reportError(err)
		os.Exit(comfyerr.ExitCode(err))
	}
}

// reportError prints err as a JSON failure document in --json mode, and as
// a plain message otherwise.
func reportError(err error) {
	if globalFlags.json {
		if encErr := xjson.Encode(os.Stdout, comfyerr.PayloadFrom(err)); encErr == nil {
			return
		}
	}
	fmt.Fprintln(os.Stderr, "error:", err)
	if ce, ok := comfyerr.As(err); ok && len(ce.Details) > 0 {
		if details, mErr := xjson.Marshal(ce.Details); mErr == nil {
			fmt.Fprintln(os.Stderr, "details:", string(details))
		}
	}
}
