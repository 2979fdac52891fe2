package observability

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/querypilot/querypilot/internal/config"
)

func TestObserveConversionCountsByOutcome(t *testing.T) {
	before := metricValue(t, "querypilot_conversions_total", "succeeded")
	ObserveConversion("succeeded", 2)
	if got := metricValue(t, "querypilot_conversions_total", "succeeded"); got != before+1 {
		t.Fatalf("conversions_total = %v, want %v", got, before+1)
	}
}

func TestObserveExecutionCountsTruncation(t *testing.T) {
	before := metricValue(t, "querypilot_execution_truncated_total", "")
	ObserveExecution(3*time.Millisecond, false)
	ObserveExecution(5*time.Millisecond, true)
	if got := metricValue(t, "querypilot_execution_truncated_total", ""); got != before+1 {
		t.Fatalf("execution_truncated_total = %v, want %v", got, before+1)
	}
}

func TestInferenceQueueDepthTracksDelta(t *testing.T) {
	before := metricValue(t, "querypilot_inference_queue_depth", "")
	AddInferenceQueueDepth(2)
	AddInferenceQueueDepth(-1)
	if got := metricValue(t, "querypilot_inference_queue_depth", ""); got != before+1 {
		t.Fatalf("queue depth = %v, want %v", got, before+1)
	}
	AddInferenceQueueDepth(-1)
}

func TestNewLoggerAddsServiceAttributes(t *testing.T) {
	cfg, err := config.Load("querypilot-api", func(key string) (string, bool) {
		if key == "QUERYPILOT_PROFILE" {
			return "test", true
		}
		return "", false
	})
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg.Observability.LogJSON = true
	cfg.Database.Dialect = "sqlite"
	cfg.AI.Provider = "static"
	cfg.AI.Model = "sql-coder"
	cfg.Pipeline.PromptVersion = "v2"

	var buf bytes.Buffer
	NewLogger(cfg, &buf).Warn("schema_reloaded", "api_key", "sk-live-123")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if entry["service"] != "querypilot-api" || entry["profile"] != "test" {
		t.Fatalf("log entry = %v", entry)
	}
	if entry["dialect"] != "sqlite" || entry["prompt_version"] != "v2" {
		t.Fatalf("conversion attributes missing: %v", entry)
	}
	ai, _ := entry["ai"].(map[string]any)
	if ai["provider"] != "static" || ai["model"] != "sql-coder" {
		t.Fatalf("ai group = %v", entry["ai"])
	}
	if entry["api_key"] != redacted {
		t.Fatalf("api_key = %v, want redacted", entry["api_key"])
	}
}

// metricValue reads a counter or gauge from the default registry. label, if
// set, must match the value of the metric's only label.
func metricValue(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if label != "" && (len(metric.GetLabel()) != 1 || metric.GetLabel()[0].GetValue() != label) {
				continue
			}
			if counter := metric.GetCounter(); counter != nil {
				return counter.GetValue()
			}
			return metric.GetGauge().GetValue()
		}
	}
	return 0
}
