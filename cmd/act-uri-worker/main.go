package main

import (
	"context"
	"os"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
)

const (
	appName string = "act-uri-worker"
)

func main() {
	appVersion := buildinfo.SourceVersion()

	ctx, log, cleanup := o11y.Init(context.Background(), appName, appVersion, "json")
	defer cleanup()

	cmd := newRootCmd(appVersion, os.Stdin, os.Stdout)

	if err := cmd.ExecuteContext(ctx); err != nil {
		log.Error("worker failed", "err", err.Error())
		cleanup()
		os.Exit(1)
	}
}
