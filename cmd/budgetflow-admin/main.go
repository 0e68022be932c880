package main

import (
	"os"

	"budgetflow/internal/cli"
	"budgetflow/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentAdmin)

	a := newApp(os.Stdout, logger)
	defer a.close()

	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}
