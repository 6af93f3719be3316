package retrieval

import (
	"encoding/json"
	"testing"

	"github.com/vaultline/core/internal/model"
)

func withPermissions(tags ...string) json.RawMessage {
	if len(tags) == 0 {
		return nil
	}
	b, _ := json.Marshal(map[string][]string{"document_permissions": tags})
	return b
}

func TestPermissionFilter_DropsDisjointCandidates(t *testing.T) {
	candidates := []Candidate{
		{Chunk: model.Chunk{ID: "a"}, Document: model.Document{Metadata: withPermissions("finance")}},
		{Chunk: model.Chunk{ID: "b"}, Document: model.Document{Metadata: withPermissions("hr")}},
	}

	filtered := permissionFilter(candidates, []string{"finance"})

	if len(filtered) != 1 || filtered[0].Chunk.ID != "a" {
		t.Fatalf("expected only chunk a to survive, got %+v", filtered)
	}
}

func TestPermissionFilter_UntaggedCandidatesAreWorldReadable(t *testing.T) {
	candidates := []Candidate{
		{Chunk: model.Chunk{ID: "untagged"}, Document: model.Document{}},
		{Chunk: model.Chunk{ID: "tagged"}, Document: model.Document{Metadata: withPermissions("hr")}},
	}

	filtered := permissionFilter(candidates, []string{"finance"})

	if len(filtered) != 1 || filtered[0].Chunk.ID != "untagged" {
		t.Fatalf("expected only untagged candidate to survive, got %+v", filtered)
	}
}

func TestPermissionFilter_NoAllowedListDisablesFilter(t *testing.T) {
	candidates := []Candidate{
		{Chunk: model.Chunk{ID: "a"}, Document: model.Document{Metadata: withPermissions("finance")}},
		{Chunk: model.Chunk{ID: "b"}, Document: model.Document{Metadata: withPermissions("hr")}},
	}

	filtered := permissionFilter(candidates, nil)

	if len(filtered) != 2 {
		t.Fatalf("expected no filtering with empty allowed set, got %d", len(filtered))
	}
}
