package main

import (
	"fmt"
	"os"

	"github.com/noah-isme/factory-ops-api/internal/cli"
)

// @title Factory Ops API
// @version 1.0.0
// @description Jig, sample and production requests with quality inspections, status history and notifications.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
