//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestInitJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Msg("hidden")
	Warn().Str("table", "dim_customer").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %q", len(lines), buf.String())
	}

	var event map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", lines[0], err)
	}
	if event["message"] != "shown" {
		t.Errorf("Expected message 'shown', got %v", event["message"])
	}
	if event["table"] != "dim_customer" {
		t.Errorf("Expected table field, got %v", event["table"])
	}
	if _, ok := event["time"]; !ok {
		t.Error("Expected a timestamp")
	}
}

func TestInitInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "loud", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Debug().Msg("debug")
	Info().Msg("info")

	if strings.Contains(buf.String(), `"message":"debug"`) {
		t.Error("Expected debug to be filtered at the fallback info level")
	}
	if !strings.Contains(buf.String(), `"message":"info"`) {
		t.Errorf("Expected info event, got %q", buf.String())
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	log := Component("stream")
	log.Debug().Msg("fetched")

	if !strings.Contains(buf.String(), `"component":"stream"`) {
		t.Errorf("Expected component field, got %q", buf.String())
	}
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "info", Pretty: true, Output: &buf})
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Msg("loaded")

	if strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
		t.Errorf("Expected console output, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "loaded") {
		t.Errorf("Expected message in output, got %q", buf.String())
	}
}
