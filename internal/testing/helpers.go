package testing

import (
	"os"
	"testing"
)

// Environment variables that select the test mode.
const (
	EnvUnitTestsOnly       = "LOGSHIP_UNIT_TESTS_ONLY"
	EnvRunIntegrationTests = "LOGSHIP_RUN_INTEGRATION_TESTS"
	EnvNATSURL             = "LOGSHIP_TEST_NATS_URL"
	EnvCollectorAddr       = "LOGSHIP_TEST_COLLECTOR_ADDR"
)

// Unit returns true if running in unit test mode.
// Unit tests should be fast and not require external services such as a
// NATS server or a real log collector.
func Unit() bool {
	// Check if explicitly running unit tests only (highest priority)
	if os.Getenv(EnvUnitTestsOnly) == "true" {
		return true
	}

	switch os.Getenv(EnvRunIntegrationTests) {
	case "true":
		return false
	case "false":
		return true
	}

	if testing.Short() {
		return true
	}

	// Default to unit mode if not explicitly running integration tests
	return true
}

// Integration returns true if running in integration test mode.
func Integration() bool {
	return !Unit()
}

// SkipIfUnit skips the test if running in unit test mode.
func SkipIfUnit(t testing.TB, message ...string) {
	t.Helper()
	if Unit() {
		msg := "Skipping integration test in unit mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// SkipIfIntegration skips the test if running in integration test mode.
func SkipIfIntegration(t testing.TB, message ...string) {
	t.Helper()
	if Integration() {
		msg := "Skipping unit-only test in integration mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// NATSURL returns the NATS server used by integration tests, skipping the
// test in unit mode.
func NATSURL(t testing.TB) string {
	t.Helper()
	SkipIfUnit(t, "Skipping NATS integration test in unit mode")
	return envOr(EnvNATSURL, "nats://127.0.0.1:4222")
}

// CollectorAddr returns the address of an external log collector, skipping
// the test in unit mode.
func CollectorAddr(t testing.TB) string {
	t.Helper()
	SkipIfUnit(t, "Skipping collector integration test in unit mode")
	return envOr(EnvCollectorAddr, "127.0.0.1:5959")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
