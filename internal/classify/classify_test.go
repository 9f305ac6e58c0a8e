package classify

import (
	"testing"
)

func TestKindForField(t *testing.T) {
	tests := []struct {
		field string
		want  Kind
	}{
		{"comments", KindComment},
		{"likes", KindLike},
		{"story_insights", KindStory},
		{"mentions", KindMention},
		{"messages", KindMessage},
		{"media", KindMedia},
		{"errors", KindError},
		{"something_new", KindUnknown},
		{"", KindUnknown},
		{"COMMENTS", KindUnknown}, // field names are case sensitive
	}

	for _, tt := range tests {
		t.Run(tt.field, func(t *testing.T) {
			if got := KindForField(tt.field); got != tt.want {
				t.Errorf("KindForField(%q) = %q, want %q", tt.field, got, tt.want)
			}
		})
	}
}

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		kind Kind
		want Priority
	}{
		{KindError, PriorityCritical},
		{KindMessage, PriorityHigh},
		{KindMention, PriorityHigh},
		{KindComment, PriorityMedium},
		{KindStory, PriorityMedium},
		{KindLike, PriorityLow},
		{KindMedia, PriorityLow},
		{KindUnknown, PriorityLow},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := PriorityFor(tt.kind); got != tt.want {
				t.Errorf("PriorityFor(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}

func TestMaxAttempts(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindError, 1},
		{KindMessage, 5},
		{KindMention, 5},
		{KindComment, 3},
		{KindLike, 3},
		{KindStory, 3},
		{KindMedia, 3},
		{KindUnknown, 3},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := MaxAttempts(tt.kind); got != tt.want {
				t.Errorf("MaxAttempts(%q) = %d, want %d", tt.kind, got, tt.want)
			}
			// Stability: repeated calls agree
			if again := MaxAttempts(tt.kind); again != tt.want {
				t.Errorf("MaxAttempts(%q) unstable: %d then %d", tt.kind, tt.want, again)
			}
		})
	}
}
