package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	// Registering twice on the same registry must panic
	defer func() {
		if r := recover(); r == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	MustRegister(reg)
}

func TestRecordHelpers(t *testing.T) {
	// Helpers must not panic regardless of label values
	RecordWebhook("instagram", "accepted")
	RecordWebhook("instagram", "bad_signature")
	RecordClassified("comment", "medium")
	RecordProcessed("comment", "processed", 125*time.Millisecond)
	RecordProcessed("mention", "failed", 0)
	RecordRetry("platform_api")
	RecordDLQ()
	RecordNotification("comment")
	RecordSentiment(0.5)
	UpdateWorkerBacklog(42)
	UpdateNSQTopicDepth("process_comment", "workers", 7)
}
