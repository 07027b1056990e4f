package registry

import (
	"context"
	"crypto/sha256"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bellaamanda2500291/decentralized-space-asset-trading/services/exchange/internal/engine"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type countingRegistry struct {
	owner       uuid.UUID
	ownerCalls  int
	existsCalls int
}

func (c *countingRegistry) OwnershipOf(ctx context.Context, asset engine.ID) (uuid.UUID, error) {
	c.ownerCalls++
	return c.owner, nil
}

func (c *countingRegistry) AssetExists(ctx context.Context, asset engine.ID) (bool, error) {
	c.existsCalls++
	return true, nil
}

func TestCachedClientReadThrough(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	inner := &countingRegistry{owner: uuid.New()}
	cached := NewCachedClient(inner, client, time.Minute, nil)
	ctx := context.Background()
	asset := engine.ID(sha256.Sum256([]byte("cached-rock")))

	for i := 0; i < 3; i++ {
		owner, err := cached.OwnershipOf(ctx, asset)
		if err != nil {
			t.Fatalf("OwnershipOf #%d: %v", i, err)
		}
		if owner != inner.owner {
			t.Fatalf("owner = %s, want %s", owner, inner.owner)
		}
	}
	if inner.ownerCalls != 1 {
		t.Errorf("inner ownership calls = %d, want 1", inner.ownerCalls)
	}

	for i := 0; i < 3; i++ {
		exists, err := cached.AssetExists(ctx, asset)
		if err != nil {
			t.Fatalf("AssetExists #%d: %v", i, err)
		}
		if !exists {
			t.Fatal("expected asset to exist")
		}
	}
	if inner.existsCalls != 1 {
		t.Errorf("inner exists calls = %d, want 1", inner.existsCalls)
	}
}

func TestCachedClientExpiry(t *testing.T) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer s.Close()

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()

	inner := &countingRegistry{owner: uuid.New()}
	cached := NewCachedClient(inner, client, time.Second, nil)
	ctx := context.Background()
	asset := engine.ID(sha256.Sum256([]byte("expiring-rock")))

	if _, err := cached.OwnershipOf(ctx, asset); err != nil {
		t.Fatalf("OwnershipOf: %v", err)
	}
	s.FastForward(2 * time.Second)
	if _, err := cached.OwnershipOf(ctx, asset); err != nil {
		t.Fatalf("OwnershipOf after expiry: %v", err)
	}
	if inner.ownerCalls != 2 {
		t.Errorf("inner ownership calls = %d, want 2 after TTL expiry", inner.ownerCalls)
	}
}
