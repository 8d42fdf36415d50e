package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/sheetsync"
)

// Runs the full pipeline scoped to a single seller number. Useful when one
// row in the sheet was fixed and the operator does not want to wait for the
// next scheduled run.
func main() {
	sellerNumber := flag.String("seller-number", "", "Required: seller number to resync (e.g. A123)")
	flag.Parse()

	if strings.TrimSpace(*sellerNumber) == "" {
		fmt.Fprintln(os.Stderr, "--seller-number is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	engine, err := sheetsync.NewEngineFromEnv(db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build sync engine: %v\n", err)
		os.Exit(1)
	}

	run, err := engine.Orchestrator.Run(context.Background(), sheetsync.RunOptions{
		TriggeredBy: models.SyncTriggeredResync,
		BusinessKey: strings.TrimSpace(*sellerNumber),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "resync failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("run %d finished: status=%s added=%d updated=%d deleted=%d errors=%d review=%d\n",
		run.ID, run.Status, run.Added, run.Updated, run.Deleted, run.ErrorCount, run.ManualReviewCount)
	if run.Status == models.SyncRunStatusFailed {
		os.Exit(1)
	}
}
