package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Format: "json", Output: &buf})

	log.With("event_id", "evt_1").Infof("[webhook] processed %s", "customer.subscription.updated")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if entry["event_id"] != "evt_1" {
		t.Fatalf("missing event_id field: %v", entry)
	}
	if entry["level"] != "info" {
		t.Fatalf("unexpected level: %v", entry["level"])
	}
	if !strings.Contains(entry["message"].(string), "customer.subscription.updated") {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Debugf("hidden")
	log.Infof("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below warn, got %q", buf.String())
	}

	log.ErrorWithErr(errors.New("boom"), "visible")
	if !strings.Contains(buf.String(), "boom") {
		t.Fatalf("expected error output, got %q", buf.String())
	}
}

func TestNopDiscards(t *testing.T) {
	Nop().Errorf("nothing %d", 1)
}
