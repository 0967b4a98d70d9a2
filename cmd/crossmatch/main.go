package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/astrofuse/astrofuse-backend/internal/app"
	"github.com/astrofuse/astrofuse-backend/internal/services"
)

// One-shot cross-match run against the configured store. Useful for cron
// driven re-matching without going through the HTTP surface.
func main() {
	var radius float64
	flag.Float64Var(&radius, "radius", 2.0, "match radius in arcseconds")
	flag.Parse()

	application, err := app.New()
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	run, err := application.Services.CrossMatch.Run(context.Background(), radius)
	if err != nil {
		if errors.Is(err, services.ErrConcurrentRun) {
			fmt.Println("another cross-match run is already in progress")
			os.Exit(1)
		}
		fmt.Printf("cross-match run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run %s completed in %s\n", run.ID, run.Duration())
	fmt.Printf("  records scanned: %d (skipped %d)\n", run.RecordsScanned, run.RecordsSkipped)
	fmt.Printf("  groups created:  %d\n", run.GroupsCreated)
	fmt.Printf("  groups merged:   %d\n", run.GroupsMerged)
	fmt.Printf("  groups split:    %d\n", run.GroupsSplit)
	if run.LargeGroups > 0 {
		fmt.Printf("  large groups:    %d (consider a tighter radius)\n", run.LargeGroups)
	}
}
