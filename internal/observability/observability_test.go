package observability

import (
	"context"
	"os"
	"testing"
)

func TestSetup(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{
		Endpoint:    "localhost:4318",
		Environment: "test",
		ServiceName: "tutorcore-test",
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}

	if got := os.Getenv("OTEL_SERVICE_NAME"); got != "tutorcore-test" {
		t.Errorf("OTEL_SERVICE_NAME = %q", got)
	}
}

func TestSetupDefaultEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown func is nil")
	}
}
