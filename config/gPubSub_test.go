package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetPubSubClientStopsOnContextCancel(t *testing.T) {
	t.Setenv("PUBSUB_PROJECT_ID", "billing-test")
	// Unparseable credentials force client creation to fail on every attempt.
	t.Setenv("PUBSUB_CREDENTIALS_JSON", "{")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	client, err := getPubSubClient(ctx)
	if client != nil {
		t.Fatal("no client expected with invalid credentials")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("getPubSubClient kept retrying %s after cancellation", elapsed)
	}
}
