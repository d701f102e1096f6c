// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewResourceCollector(t *testing.T) {
	ctx := context.Background()
	interval := 1 * time.Second

	collector := NewResourceCollector(ctx, interval)

	if collector == nil {
		t.Fatal("Expected collector to be created")
	}

	if collector.interval != interval {
		t.Errorf("Expected interval %v, got %v", interval, collector.interval)
	}

	if collector.ctx == nil {
		t.Error("Expected context to be set")
	}

	if collector.started.IsZero() {
		t.Error("Expected started time to be set")
	}

	// Clean up
	collector.Stop()
}

func TestResourceCollectorStart(t *testing.T) {
	Enable()

	// Reset gauges
	Goroutines.Set(0)
	MemoryAllocBytes.Set(0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collector := NewResourceCollector(ctx, 100*time.Millisecond)

	// Start collector in background
	go collector.Start()

	// Wait for at least one collection cycle
	time.Sleep(150 * time.Millisecond)

	// Stop collector
	collector.Stop()

	// Verify metrics were collected
	if testutil.ToFloat64(Goroutines) == 0 {
		t.Error("Expected goroutines gauge to be updated")
	}

	if testutil.ToFloat64(MemoryAllocBytes) == 0 {
		t.Error("Expected memory alloc gauge to be updated")
	}
}

func TestResourceCollectorStop(t *testing.T) {
	ctx := context.Background()
	collector := NewResourceCollector(ctx, 1*time.Second)

	// Start collector
	go collector.Start()

	// Stop immediately
	collector.Stop()

	// Should complete without blocking
	// If this test hangs, Stop() isn't working correctly
}

func TestResourceCollectorContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	collector := NewResourceCollector(ctx, 1*time.Second)

	// Start collector
	done := make(chan bool)
	go func() {
		collector.Start()
		done <- true
	}()

	// Cancel context
	cancel()

	// Wait for collector to stop
	select {
	case <-done:
		// Success
	case <-time.After(2 * time.Second):
		t.Error("Collector did not stop after context cancellation")
	}
}

func TestStartResourceCollector(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	collector := StartResourceCollector(ctx, 50*time.Millisecond)
	if collector == nil {
		t.Fatal("Expected collector to be created")
	}

	// Cancelling the parent context stops the collector
	cancel()
	time.Sleep(50 * time.Millisecond)
}
