package activitymap

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-fhir-auth"
)

const (
	// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyFromStatus stores the login status before a transition.
	MetadataKeyFromStatus = "from_status"
	// MetadataKeyToStatus stores the login status after a transition.
	MetadataKeyToStatus = "to_status"
	// MetadataKeyUser stores the user reference of the login.
	MetadataKeyUser = "user"
)

const (
	defaultChannel  = "fhirauth"
	defaultActorID  = "system"
	objectTypeLogin = "Login"
)

// Normalized is a transport-agnostic activity shape for audit pipelines.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts an auth.ActivityEvent into the generic shape. Login
// events point at the login; binary retrievals point at the Binary named
// in the event metadata.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now()
	}

	objectType, objectID := object(event)

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.User),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithChannel sets the channel of normalized records.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event names no actor
// and no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock stamps events that carry no occurrence time.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// NewLogSink returns an ActivitySink writing one normalized record per
// event to logger.
func NewLogSink(logger auth.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := Normalize(event, opts...)
		logger.Info(record.Verb,
			"actor_id", record.ActorID,
			"object_type", record.ObjectType,
			"object_id", record.ObjectID,
			"channel", record.Channel,
			"metadata", record.Metadata,
			"occurred_at", record.OccurredAt,
		)
		return nil
	})
}

func object(event auth.ActivityEvent) (string, string) {
	if event.EventType == auth.ActivityEventBinaryRetrieved {
		id, _ := event.Metadata["binary"].(string)
		return "Binary", strings.TrimSpace(id)
	}
	return objectTypeLogin, strings.TrimSpace(event.LoginID)
}

func normalizeMetadata(event auth.ActivityEvent) map[string]any {
	metadata := map[string]any{}
	for key, value := range event.Metadata {
		metadata[key] = value
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}
	if event.User != "" {
		metadata[MetadataKeyUser] = event.User
	}
	if event.FromStatus != "" {
		metadata[MetadataKeyFromStatus] = string(event.FromStatus)
	}
	if event.ToStatus != "" {
		metadata[MetadataKeyToStatus] = string(event.ToStatus)
	}

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
