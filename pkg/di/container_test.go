package di

import (
	"context"
	"testing"

	"github.com/goliatone/go-querysync/internal/cacheinfra"
	"github.com/goliatone/go-querysync/querysync"
)

func TestNewContainer(t *testing.T) {
	config := cacheinfra.Config{
		Capacity:           1000,
		NumShards:          64,
		EvictionPercentage: 10,
		LockStripes:        16,
	}

	container, err := NewContainer(config)
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container == nil {
		t.Fatal("NewContainer() returned nil container")
	}

	if container.Codec() == nil {
		t.Error("Container should have a non-nil codec")
	}

	if container.Router() == nil {
		t.Error("Container should have a non-nil router")
	}

	storedConfig := container.Config()
	if storedConfig.Capacity != config.Capacity {
		t.Errorf("Expected capacity %d, got %d", config.Capacity, storedConfig.Capacity)
	}

	if storedConfig.LockStripes != config.LockStripes {
		t.Errorf("Expected lock stripes %d, got %d", config.LockStripes, storedConfig.LockStripes)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	config := container.Config()
	defaultConfig := cacheinfra.DefaultConfig()

	if config.Capacity != defaultConfig.Capacity {
		t.Errorf("Expected default capacity %d, got %d", defaultConfig.Capacity, config.Capacity)
	}

	if config.NumShards != defaultConfig.NumShards {
		t.Errorf("Expected default shards %d, got %d", defaultConfig.NumShards, config.NumShards)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	invalidConfig := cacheinfra.Config{
		Capacity:           0, // Invalid: must be > 0
		NumShards:          256,
		EvictionPercentage: 10,
		LockStripes:        8,
	}

	_, err := NewContainer(invalidConfig)
	if err == nil {
		t.Error("NewContainer() should fail with invalid config")
	}
}

func TestContainerSingletonBehavior(t *testing.T) {
	router := querysync.NewRouter()
	container, err := NewContainerWithDefaults(WithRouter(router))
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	if container.Router() != router {
		t.Error("Router() should return the configured router")
	}

	if container.Codec() != container.Codec() {
		t.Error("Codec() should return the same instance (singleton behavior)")
	}
}

func TestNewClient_FreshStorePerCall(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	first, err := container.NewClient()
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}
	second, err := container.NewClient()
	if err != nil {
		t.Fatalf("NewClient() failed: %v", err)
	}

	if first.Store() == second.Store() {
		t.Fatal("each client should own its store")
	}

	sig := first.Signature("ping", nil)
	first.Fetch(context.Background(), sig, nil)
	if _, ok := second.Store().Get(sig); ok {
		t.Error("entries leaked between client stores")
	}
}

func TestSignatureCodecIntegration(t *testing.T) {
	container, err := NewContainerWithDefaults()
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	codec := container.Codec()

	testCases := []struct {
		name     string
		query    string
		params   any
		expected string
	}{
		{
			name:     "no params",
			query:    "getAllPosts",
			params:   nil,
			expected: "getAllPosts",
		},
		{
			name:     "empty params",
			query:    "getAllPosts",
			params:   map[string]any{},
			expected: "getAllPosts",
		},
		{
			name:     "single param",
			query:    "getUserByUsername",
			params:   map[string]any{"username": "ada"},
			expected: `getUserByUsername::{"username":"ada"}`,
		},
		{
			name:     "sorted params",
			query:    "search",
			params:   map[string]any{"z": 1, "a": true},
			expected: `search::{"a":true,"z":1}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := codec.SignatureOf(tc.query, tc.params).Key()
			if result != tc.expected {
				t.Errorf("Expected key %q, got %q", tc.expected, result)
			}
		})
	}
}
