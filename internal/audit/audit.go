// Package audit writes append-only, hash-chained audit entries. No update
// or delete path exists in this package by design; the backing store is
// expected to deny UPDATE/DELETE at the storage role level.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultline/core/internal/model"
)

// maxQuestionChars truncates logged questions to bound row size and avoid
// leaking an unbounded amount of user input into the audit trail.
const maxQuestionChars = 500

// Repository persists audit entries and reports the tenant's current chain
// tip so a new writer can continue the chain after a restart.
type Repository interface {
	Create(ctx context.Context, entry *model.AuditLog) error
	LatestHash(ctx context.Context, tenantID string) (string, error)
}

// Entry is the caller-facing shape of one audit write; ID, PrevHash, Hash,
// and CreatedAt are assigned by Logger.
type Entry struct {
	TenantID   string
	ActorID    string // empty means no authenticated actor
	Action     string
	ResourceID string
	Details    map[string]interface{}
}

// Logger appends hash-chained entries per tenant. Each tenant's chain is
// independent: PrevHash links to that tenant's own previous entry, not a
// global sequence, so one tenant's write volume never touches another's
// chain.
type Logger struct {
	repo Repository
}

// New creates a Logger.
func New(repo Repository) *Logger {
	return &Logger{repo: repo}
}

// Log appends one entry to e.TenantID's chain.
func (l *Logger) Log(ctx context.Context, e Entry) error {
	if e.TenantID == "" {
		return fmt.Errorf("audit.Log: tenant id is required")
	}
	if e.Action == "" {
		return fmt.Errorf("audit.Log: action is required")
	}

	prevHash, err := l.repo.LatestHash(ctx, e.TenantID)
	if err != nil {
		return fmt.Errorf("audit.Log: latest hash: %w", err)
	}

	entry := &model.AuditLog{
		ID:        uuid.New().String(),
		TenantID:  e.TenantID,
		Action:    e.Action,
		PrevHash:  prevHash,
		CreatedAt: time.Now().UTC(),
	}
	if e.ActorID != "" {
		entry.ActorID = &e.ActorID
	}
	if e.ResourceID != "" {
		entry.ResourceID = &e.ResourceID
	}
	if e.Details != nil {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("audit.Log: marshal details: %w", err)
		}
		entry.Details = detailsJSON
	}

	entry.Hash = computeHash(entry)

	if err := l.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("audit.Log: %w", err)
	}
	return nil
}

// LogQuery is a convenience wrapper for the query path, which always
// truncates the logged question per spec.
func (l *Logger) LogQuery(ctx context.Context, tenantID, actorID, question string, success bool, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["question"] = truncate(question, maxQuestionChars)
	details["success"] = success

	action := model.ActionQueryAnswered
	if !success {
		action = model.ActionQueryRefused
	}

	return l.Log(ctx, Entry{TenantID: tenantID, ActorID: actorID, Action: action, Details: details})
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// computeHash links entry to its chain via sha256(prevHash || action ||
// createdAt || details).
func computeHash(entry *model.AuditLog) string {
	h := sha256.New()
	h.Write([]byte(entry.PrevHash))
	h.Write([]byte(entry.Action))
	h.Write([]byte(entry.CreatedAt.Format(time.RFC3339Nano)))
	if entry.Details != nil {
		h.Write(entry.Details)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
