package classify

// Kind is the closed set of event kinds a webhook change maps to.
type Kind string

const (
	KindComment Kind = "comment"
	KindLike    Kind = "like"
	KindStory   Kind = "story"
	KindMention Kind = "mention"
	KindMessage Kind = "message"
	KindMedia   Kind = "media"
	KindError   Kind = "error"
	KindUnknown Kind = "unknown"
)

// Priority orders how urgently an event should be looked at.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// fieldKinds maps webhook change field names to event kinds. Fields not in
// the table classify as KindUnknown and are stored verbatim.
var fieldKinds = map[string]Kind{
	"comments":       KindComment,
	"likes":          KindLike,
	"story_insights": KindStory,
	"mentions":       KindMention,
	"messages":       KindMessage,
	"media":          KindMedia,
	"errors":         KindError,
}

// KindForField classifies a change field name.
func KindForField(field string) Kind {
	if k, ok := fieldKinds[field]; ok {
		return k
	}
	return KindUnknown
}

// PriorityFor assigns the static priority for an event kind.
func PriorityFor(kind Kind) Priority {
	switch kind {
	case KindError:
		return PriorityCritical
	case KindMessage, KindMention:
		return PriorityHigh
	case KindComment, KindStory:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// MaxAttempts returns the processing attempt ceiling for an event kind.
// Error events are never retried; messages and mentions get the most attempts.
func MaxAttempts(kind Kind) int {
	switch kind {
	case KindError:
		return 1
	case KindMessage, KindMention:
		return 5
	default:
		return 3
	}
}
