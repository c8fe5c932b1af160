package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/lingoreel/lingoreel/internal/email"
	webhookpkg "github.com/lingoreel/lingoreel/internal/webhook"
)

func TestGetEnvReturnsValueWhenSet(t *testing.T) {
	const key = "TEST_GETENV_SET"
	const expected = "custom-value"

	t.Setenv(key, expected)

	result := getEnv(key, "fallback")
	if result != expected {
		t.Errorf("expected %q, got %q", expected, result)
	}
}

func TestGetEnvReturnsFallbackWhenEmpty(t *testing.T) {
	const key = "TEST_GETENV_EMPTY"
	const fallback = "default-value"

	t.Setenv(key, "")

	result := getEnv(key, fallback)
	if result != fallback {
		t.Errorf("expected fallback %q for empty env var, got %q", fallback, result)
	}
}

func TestGetEnvInt64(t *testing.T) {
	tests := []struct {
		value string
		want  int64
	}{
		{"", 42},
		{"1048576", 1048576},
		{"lots", 42},
	}
	for _, tc := range tests {
		t.Setenv("TEST_GETENV_INT", tc.value)
		if got := getEnvInt64("TEST_GETENV_INT", 42); got != tc.want {
			t.Errorf("value %q: expected %d, got %d", tc.value, tc.want, got)
		}
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		value    string
		fallback bool
		want     bool
	}{
		{"", false, false},
		{"true", false, true},
		{"1", false, true},
		{"false", true, false},
		{"maybe", true, true},
	}
	for _, tc := range tests {
		t.Setenv("TEST_GETENV_BOOL", tc.value)
		if got := getEnvBool("TEST_GETENV_BOOL", tc.fallback); got != tc.want {
			t.Errorf("value %q: expected %v, got %v", tc.value, tc.want, got)
		}
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_GETENV_DURATION", "500ms")
	if got := getEnvDuration("TEST_GETENV_DURATION", time.Second); got != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %v", got)
	}

	t.Setenv("TEST_GETENV_DURATION", "-3s")
	if got := getEnvDuration("TEST_GETENV_DURATION", time.Second); got != time.Second {
		t.Errorf("expected fallback for negative duration, got %v", got)
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" alice@example.com, ,bob@example.com,")
	want := []string{"alice@example.com", "bob@example.com"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("parseList mismatch (-want +got):\n%s", diff)
	}
	if parseList("") != nil {
		t.Error("expected nil for empty input")
	}
}

func TestBuildNotifier(t *testing.T) {
	emailClient := email.New(email.Config{})

	tests := []struct {
		name     string
		slackURL string
		webhook  *webhookpkg.Client
		want     int
	}{
		{"email only", "", webhookpkg.New(nil, "", ""), 1},
		{"with slack", "https://hooks.slack.com/services/T/B/X", nil, 2},
		{"all channels", "https://hooks.slack.com/services/T/B/X", webhookpkg.New(nil, "https://example.com/hook", "secret"), 3},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := buildNotifier(emailClient, tc.slackURL, "https://lingoreel.example", tc.webhook)
			if n.Len() != tc.want {
				t.Errorf("expected %d channels, got %d", tc.want, n.Len())
			}
		})
	}
}
