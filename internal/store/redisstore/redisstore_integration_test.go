//go:build integration

package redisstore

import (
	"context"
	"os"
	"testing"
	"time"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	s, err := New(context.Background(), addr, os.Getenv("REDIS_PASSWORD"), 0)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIntegration_TransliterationCache(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	text := "آپ کا بل " + time.Now().Format(time.RFC3339Nano)
	t.Cleanup(func() { s.DeleteTransliteration(ctx, text) })

	if _, found, err := s.GetTransliteration(ctx, text); err != nil || found {
		t.Fatalf("expected miss, got found=%v err=%v", found, err)
	}
	if err := s.SetTransliteration(ctx, text, "aap ka bill"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, found, err := s.GetTransliteration(ctx, text)
	if err != nil || !found {
		t.Fatalf("expected hit, got found=%v err=%v", found, err)
	}
	if got != "aap ka bill" {
		t.Errorf("expected %q, got %q", "aap ka bill", got)
	}
}

func TestIntegration_Expiry(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	s.SetTTL(time.Second)
	text := "expiring " + time.Now().Format(time.RFC3339Nano)

	if err := s.SetTransliteration(ctx, text, "x"); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(1500 * time.Millisecond)
	if _, found, _ := s.GetTransliteration(ctx, text); found {
		t.Error("expected entry to expire")
	}
}
