// Package audit is a thin convenience wrapper over
// repositories.AuditEntryRepository (C12): an append-only sequence of
// permission decisions, with no PII, that the UI consults for
// transparency and that other components write to on every permission
// grant, denial, revocation, or check outcome.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/infiniteinsight/spectral/internal/db"
	"github.com/infiniteinsight/spectral/internal/repositories"
)

// Event names an audit entry's kind.
type Event string

const (
	EventChecked Event = "checked"
	EventGranted Event = "granted"
	EventDenied  Event = "denied"
	EventRevoked Event = "revoked"
)

// Log wraps an AuditEntryRepository with named helpers for each event
// kind so callers can't misspell an Event string.
type Log struct {
	entries repositories.AuditEntryRepository
}

// New returns a Log backed by entries.
func New(entries repositories.AuditEntryRepository) *Log {
	return &Log{entries: entries}
}

func (l *Log) record(ctx context.Context, event Event, permission, actorMeta string) error {
	entry := &db.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Event:      string(event),
		Permission: permission,
		ActorMeta:  actorMeta,
	}
	if err := l.entries.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit: failed to record %s: %w", event, err)
	}
	return nil
}

// Checked records a permission check outcome. allowed distinguishes a
// successful check from a denial without needing a separate Event.
func (l *Log) Checked(ctx context.Context, permission string, allowed bool) error {
	if allowed {
		return l.record(ctx, EventChecked, permission, "")
	}
	return l.record(ctx, EventDenied, permission, "")
}

// Granted records a permission being granted, e.g. by a privacy level
// switch or an explicit user action.
func (l *Log) Granted(ctx context.Context, permission, actorMeta string) error {
	return l.record(ctx, EventGranted, permission, actorMeta)
}

// Denied records a permission being explicitly denied.
func (l *Log) Denied(ctx context.Context, permission, actorMeta string) error {
	return l.record(ctx, EventDenied, permission, actorMeta)
}

// Revoked records a previously granted permission being revoked.
func (l *Log) Revoked(ctx context.Context, permission, actorMeta string) error {
	return l.record(ctx, EventRevoked, permission, actorMeta)
}

// Recent returns the most recent entries, newest first, up to limit.
func (l *Log) Recent(ctx context.Context, limit int) ([]db.AuditEntry, error) {
	entries, err := l.entries.List(ctx, repositories.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list entries: %w", err)
	}
	return entries, nil
}

// ByPermission returns entries for a single permission, newest first, up
// to limit.
func (l *Log) ByPermission(ctx context.Context, permission string, limit int) ([]db.AuditEntry, error) {
	entries, err := l.entries.ListByPermission(ctx, permission, repositories.ListOptions{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list entries for %s: %w", permission, err)
	}
	return entries, nil
}
