package activitymap_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	auth "github.com/goliatone/go-fhir-auth"
	"github.com/goliatone/go-fhir-auth/activitymap"
)

func TestNormalizeLoginTransition(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := auth.ActivityEvent{
		EventType:  auth.ActivityEventProfileBound,
		Actor:      auth.ActorRef{ID: "u1", Type: "user"},
		LoginID:    "L1",
		User:       "User/u1",
		FromStatus: auth.LoginStatusPending,
		ToStatus:   auth.LoginStatusProfileBound,
		Metadata: map[string]any{
			"membership": "M1",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "u1" {
		t.Fatalf("expected actor_id u1, got %q", out.ActorID)
	}
	if out.Verb != string(auth.ActivityEventProfileBound) {
		t.Fatalf("expected verb %q, got %q", auth.ActivityEventProfileBound, out.Verb)
	}
	if out.ObjectType != "Login" || out.ObjectID != "L1" {
		t.Fatalf("expected object Login/L1, got %s/%s", out.ObjectType, out.ObjectID)
	}
	if out.Channel != "fhirauth" {
		t.Fatalf("expected channel fhirauth, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["membership"] != "M1" {
		t.Fatalf("expected metadata membership M1, got %#v", out.Metadata["membership"])
	}
	if out.Metadata[activitymap.MetadataKeyActorType] != "user" {
		t.Fatalf("expected actor_type user, got %#v", out.Metadata[activitymap.MetadataKeyActorType])
	}
	if out.Metadata[activitymap.MetadataKeyFromStatus] != "pending" {
		t.Fatalf("expected from_status pending, got %#v", out.Metadata[activitymap.MetadataKeyFromStatus])
	}
	if out.Metadata[activitymap.MetadataKeyToStatus] != "profile-bound" {
		t.Fatalf("expected to_status profile-bound, got %#v", out.Metadata[activitymap.MetadataKeyToStatus])
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeBinaryRetrieval(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventBinaryRetrieved,
		Actor:     auth.ActorRef{Type: "signed_url"},
		Metadata:  map[string]any{"binary": "B1", "bytes": int64(12)},
	})

	if out.ObjectType != "Binary" || out.ObjectID != "B1" {
		t.Fatalf("expected object Binary/B1, got %s/%s", out.ObjectType, out.ObjectID)
	}
	if out.ActorID != "system" {
		t.Fatalf("expected fallback actor system, got %q", out.ActorID)
	}
}

func TestNormalizeOptions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	out := activitymap.Normalize(
		auth.ActivityEvent{EventType: auth.ActivityEventLoginRevoked, LoginID: "L2"},
		activitymap.WithChannel("audit"),
		activitymap.WithActorFallback("scheduler"),
		activitymap.WithClock(func() time.Time { return now }),
	)

	if out.Channel != "audit" {
		t.Fatalf("expected channel audit, got %q", out.Channel)
	}
	if out.ActorID != "scheduler" {
		t.Fatalf("expected actor scheduler, got %q", out.ActorID)
	}
	if !out.OccurredAt.Equal(now) {
		t.Fatalf("expected clock time, got %v", out.OccurredAt)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no metadata, got %#v", out.Metadata)
	}
}

func TestNormalizeFallsBackToUser(t *testing.T) {
	t.Parallel()

	out := activitymap.Normalize(auth.ActivityEvent{
		EventType: auth.ActivityEventTokenIssued,
		LoginID:   "L3",
		User:      "User/u9",
	})
	if out.ActorID != "User/u9" {
		t.Fatalf("expected actor User/u9, got %q", out.ActorID)
	}
}

type lineLogger struct {
	lines []string
}

func (l *lineLogger) Debug(format string, args ...any) {}
func (l *lineLogger) Info(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprint(append([]any{format}, args...)...))
}
func (l *lineLogger) Warn(format string, args ...any)  {}
func (l *lineLogger) Error(format string, args ...any) {}

func TestLogSink(t *testing.T) {
	t.Parallel()

	logger := &lineLogger{}
	sink := activitymap.NewLogSink(logger)

	if err := sink.Record(context.Background(), auth.ActivityEvent{
		EventType: auth.ActivityEventLoginGranted,
		LoginID:   "L4",
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logger.lines) != 1 {
		t.Fatalf("expected one log line, got %d", len(logger.lines))
	}
}
