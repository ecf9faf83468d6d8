package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/fx"

	"github.com/feiralabs/feira/internal/app"
	"github.com/feiralabs/feira/internal/profile"
	"github.com/feiralabs/feira/internal/tui"
)

const startTimeout = 15 * time.Second

func main() {
	profileFlag := flag.String("profile", "default", "profile name")
	userFlag := flag.String("user", "", "user id (overrides config)")
	nameFlag := flag.String("name", "", "display name (overrides config)")
	tokenFlag := flag.String("token", "", "api token (overrides config)")
	flag.Parse()

	if err := profile.ValidateName(*profileFlag); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var ui *tui.App
	fxApp := fx.New(
		app.Module(app.Params{
			Profile:  *profileFlag,
			UserID:   *userFlag,
			UserName: *nameFlag,
			Token:    *tokenFlag,
		}),
		fx.Populate(&ui),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	runErr := ui.Run()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), startTimeout)
	defer stopCancel()
	if err := fxApp.Stop(stopCtx); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", runErr)
		os.Exit(1)
	}
}
