package main

import (
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{AnthropicAPIKey: "test"}
	applyDefaults(&cfg)

	if cfg.PromoteThreshold != 60 || cfg.ImmediateThreshold != 80 {
		t.Fatalf("unexpected thresholds: %d/%d", cfg.PromoteThreshold, cfg.ImmediateThreshold)
	}
	if cfg.OracleBatchSize != 20 || cfg.SurfaceBatchSize != 10 || cfg.SweepLimit != 50 {
		t.Fatalf("unexpected batch sizes: %d/%d/%d",
			cfg.OracleBatchSize, cfg.SurfaceBatchSize, cfg.SweepLimit)
	}
	if cfg.AutonomyWindowMins != 35 || cfg.MinFeedbackSample != 10 {
		t.Fatalf("unexpected autonomy settings: window=%d sample=%d",
			cfg.AutonomyWindowMins, cfg.MinFeedbackSample)
	}
	if cfg.AutonomySchedule != "*/30 * * * *" || cfg.PeopleSchedule != "0 7 * * *" {
		t.Fatalf("unexpected schedules: %q, %q", cfg.AutonomySchedule, cfg.PeopleSchedule)
	}
	if len(cfg.RSSFeeds) == 0 {
		t.Fatal("expected default feed list")
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := Config{
		AnthropicAPIKey:    "test",
		PromoteThreshold:   70,
		ImmediateThreshold: 90,
		RSSFeeds:           []FeedSource{{Name: "Custom", URL: "https://feeds.example/custom"}},
	}
	applyDefaults(&cfg)

	if cfg.PromoteThreshold != 70 || cfg.ImmediateThreshold != 90 {
		t.Fatalf("explicit thresholds overwritten: %d/%d",
			cfg.PromoteThreshold, cfg.ImmediateThreshold)
	}
	if len(cfg.RSSFeeds) != 1 || cfg.RSSFeeds[0].Name != "Custom" {
		t.Fatalf("explicit feed list overwritten: %+v", cfg.RSSFeeds)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("PROMOTE_THRESHOLD", "75")
	t.Setenv("SLACK_CHANNEL", "#war-room")

	cfg := Config{PromoteThreshold: 60, SlackChannel: "#competitive-intel"}
	envOverrideInt(&cfg.PromoteThreshold, "PROMOTE_THRESHOLD")
	envOverride(&cfg.SlackChannel, "SLACK_CHANNEL")

	if cfg.PromoteThreshold != 75 {
		t.Fatalf("expected env threshold 75, got %d", cfg.PromoteThreshold)
	}
	if cfg.SlackChannel != "#war-room" {
		t.Fatalf("expected env channel, got %q", cfg.SlackChannel)
	}
}

func TestAutonomyWindowCoversCadence(t *testing.T) {
	cfg := testConfig()
	window := time.Duration(cfg.AutonomyWindowMins) * time.Minute
	if window <= 30*time.Minute {
		t.Fatalf("window %s must exceed the 30m cadence", window)
	}
}
