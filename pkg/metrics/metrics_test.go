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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsEnabled(t *testing.T) {
	// Metrics should be enabled by default
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled by default")
	}

	// Test disabling
	Disable()
	if IsEnabled() {
		t.Error("Expected metrics to be disabled after Disable()")
	}

	// Test enabling
	Enable()
	if !IsEnabled() {
		t.Error("Expected metrics to be enabled after Enable()")
	}
}

func TestRecordCeremony(t *testing.T) {
	Enable()

	// Reset counters before test
	CeremoniesTotal.Reset()
	CeremonyDuration.Reset()

	// Record a successful ceremony stage
	RecordCeremony(CeremonyRegistration, StageFinish, StatusSuccess, 0.05)

	// Verify counter incremented
	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 1 {
		t.Errorf("Expected 1 ceremony recorded, got %d", count)
	}

	// Verify histogram updated
	histCount := testutil.CollectAndCount(CeremonyDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}

	// Record an error ceremony stage
	RecordCeremony(CeremonyAuthentication, StageBegin, StatusError, 0.01)

	// Verify counter incremented again
	count = testutil.CollectAndCount(CeremoniesTotal)
	if count != 2 {
		t.Errorf("Expected 2 ceremonies recorded, got %d", count)
	}
}

func TestRecordCeremonyWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	// Reset counters
	CeremoniesTotal.Reset()

	// Record ceremony while disabled
	RecordCeremony(CeremonyRegistration, StageBegin, StatusSuccess, 0.01)

	// Verify nothing was recorded
	count := testutil.CollectAndCount(CeremoniesTotal)
	if count != 0 {
		t.Errorf("Expected 0 ceremonies when disabled, got %d", count)
	}
}

func TestRecordError(t *testing.T) {
	Enable()

	// Reset counters
	ErrorsTotal.Reset()

	// Record an error
	RecordError(CeremonyAuthentication, "counter_regression")

	// Verify counter incremented
	count := testutil.CollectAndCount(ErrorsTotal)
	if count != 1 {
		t.Errorf("Expected 1 error recorded, got %d", count)
	}

	// Record another error
	RecordError(CeremonyRegistration, "challenge_expired")

	// Verify counter incremented again
	count = testutil.CollectAndCount(ErrorsTotal)
	if count != 2 {
		t.Errorf("Expected 2 errors recorded, got %d", count)
	}
}

func TestRecordErrorWhenDisabled(t *testing.T) {
	Disable()
	defer Enable()

	// Reset counters
	ErrorsTotal.Reset()

	// Record error while disabled
	RecordError(CeremonyAuthentication, "counter_regression")

	// Verify nothing was recorded
	count := testutil.CollectAndCount(ErrorsTotal)
	if count != 0 {
		t.Errorf("Expected 0 errors when disabled, got %d", count)
	}
}

func TestRecordHTTPRequest(t *testing.T) {
	Enable()

	// Reset metrics
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	// Record HTTP request
	RecordHTTPRequest("POST", "200", 0.025)

	// Verify counter incremented
	count := testutil.CollectAndCount(HTTPRequestsTotal)
	if count != 1 {
		t.Errorf("Expected 1 HTTP request recorded, got %d", count)
	}

	// Verify histogram updated
	histCount := testutil.CollectAndCount(HTTPRequestDuration)
	if histCount != 1 {
		t.Errorf("Expected 1 histogram sample, got %d", histCount)
	}
}

func TestRecordCredentialRegistered(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(CredentialsRegisteredTotal)

	RecordCredentialRegistered()

	after := testutil.ToFloat64(CredentialsRegisteredTotal)
	if after != before+1 {
		t.Errorf("Expected counter to advance by 1, got %v -> %v", before, after)
	}
}

func TestRecordChallengesExpired(t *testing.T) {
	Enable()

	before := testutil.ToFloat64(ChallengesExpiredTotal)

	RecordChallengesExpired(3)

	after := testutil.ToFloat64(ChallengesExpiredTotal)
	if after != before+3 {
		t.Errorf("Expected counter to advance by 3, got %v -> %v", before, after)
	}

	// Non-positive counts are ignored
	RecordChallengesExpired(0)
	RecordChallengesExpired(-5)

	if testutil.ToFloat64(ChallengesExpiredTotal) != after {
		t.Error("Expected non-positive counts to be ignored")
	}
}
