package audit

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/vaultline/core/internal/model"
)

type fakeRepo struct {
	mu      sync.Mutex
	entries map[string][]model.AuditLog // keyed by tenant
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{entries: make(map[string][]model.AuditLog)}
}

func (f *fakeRepo) Create(ctx context.Context, entry *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.TenantID] = append(f.entries[entry.TenantID], *entry)
	return nil
}

func (f *fakeRepo) LatestHash(ctx context.Context, tenantID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.entries[tenantID]
	if len(rows) == 0 {
		return "", nil
	}
	return rows[len(rows)-1].Hash, nil
}

func (f *fakeRepo) Range(ctx context.Context, tenantID, startID, endID string) ([]model.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	started := false
	for _, e := range f.entries[tenantID] {
		if e.ID == startID {
			started = true
		}
		if started {
			out = append(out, e)
		}
		if e.ID == endID {
			break
		}
	}
	return out, nil
}

func TestLog_ChainsHashesWithinTenant(t *testing.T) {
	repo := newFakeRepo()
	logger := New(repo)
	ctx := context.Background()

	if err := logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "document.uploaded"}); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "document.ingested"}); err != nil {
		t.Fatalf("Log: %v", err)
	}

	rows := repo.entries["tenant-a"]
	if len(rows) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(rows))
	}
	if rows[0].PrevHash != "" {
		t.Fatalf("expected genesis entry to have empty PrevHash, got %q", rows[0].PrevHash)
	}
	if rows[1].PrevHash != rows[0].Hash {
		t.Fatalf("expected second entry's PrevHash to equal first entry's Hash")
	}
	if rows[0].Hash == rows[1].Hash {
		t.Fatal("expected distinct hashes for distinct entries")
	}
}

func TestLog_TenantChainsAreIndependent(t *testing.T) {
	repo := newFakeRepo()
	logger := New(repo)
	ctx := context.Background()

	logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "document.uploaded"})
	logger.Log(ctx, Entry{TenantID: "tenant-b", Action: "document.uploaded"})

	if repo.entries["tenant-a"][0].PrevHash != "" {
		t.Fatal("expected tenant-a's first entry to have empty PrevHash")
	}
	if repo.entries["tenant-b"][0].PrevHash != "" {
		t.Fatal("expected tenant-b's first entry to have empty PrevHash")
	}
}

func TestLog_RequiresTenantAndAction(t *testing.T) {
	repo := newFakeRepo()
	logger := New(repo)
	ctx := context.Background()

	if err := logger.Log(ctx, Entry{Action: "x"}); err == nil {
		t.Fatal("expected error for missing tenant id")
	}
	if err := logger.Log(ctx, Entry{TenantID: "t"}); err == nil {
		t.Fatal("expected error for missing action")
	}
}

func TestLogQuery_TruncatesQuestion(t *testing.T) {
	repo := newFakeRepo()
	logger := New(repo)
	ctx := context.Background()

	longQuestion := strings.Repeat("a", 600)
	if err := logger.LogQuery(ctx, "tenant-a", "user-1", longQuestion, true, nil); err != nil {
		t.Fatalf("LogQuery: %v", err)
	}

	rows := repo.entries["tenant-a"]
	var details map[string]interface{}
	if err := json.Unmarshal(rows[0].Details, &details); err != nil {
		t.Fatalf("unmarshal details: %v", err)
	}
	if q, _ := details["question"].(string); len(q) != maxQuestionChars {
		t.Fatalf("expected question truncated to %d chars, got %d", maxQuestionChars, len(q))
	}
}

func TestVerifyChain_DetectsTamperedEntry(t *testing.T) {
	repo := newFakeRepo()
	logger := New(repo)
	ctx := context.Background()

	logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "a"})
	logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "b"})
	logger.Log(ctx, Entry{TenantID: "tenant-a", Action: "c"})

	rows := repo.entries["tenant-a"]
	startID, endID := rows[0].ID, rows[2].ID

	result, err := VerifyChain(ctx, repo, "tenant-a", startID, endID)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if !result.Valid || result.EntriesChecked != 3 {
		t.Fatalf("expected valid chain over 3 entries, got %+v", result)
	}

	// Tamper with the middle entry's action after the fact.
	repo.mu.Lock()
	tampered := repo.entries["tenant-a"]
	tampered[1].Action = "tampered"
	repo.mu.Unlock()

	result, err = VerifyChain(ctx, repo, "tenant-a", startID, endID)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if result.Valid {
		t.Fatal("expected tampering to be detected")
	}
	if result.BrokenAt != rows[1].ID {
		t.Fatalf("expected break reported at tampered entry, got %q", result.BrokenAt)
	}
}
