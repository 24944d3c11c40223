// expire-subscriptions lapses active subscriptions whose end date has passed.
// Intended to run as a scheduled job (Cloud Scheduler / cron).
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/expire-subscriptions
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"bitbucket.org/easybudget/billing_backend/config"
	"bitbucket.org/easybudget/billing_backend/workflow"
)

func main() {
	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	logger := config.GetLogger()
	expired, err := workflow.ExpireDueSubscriptions(ctx, db, logger, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "expire run failed after %d rows: %v\n", expired, err)
		os.Exit(1)
	}
	fmt.Printf("Expired %d subscriptions\n", expired)
}
