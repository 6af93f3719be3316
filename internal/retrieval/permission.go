package retrieval

import "encoding/json"

// docMetadata is the subset of model.Document.Metadata this package reads.
type docMetadata struct {
	DocumentPermissions []string `json:"document_permissions"`
}

// permissionFilter drops candidates whose document metadata lists
// permissions disjoint from allowed. A candidate with no permissions set
// (empty list or unparseable metadata) is treated as world-readable. An
// empty allowed set disables filtering entirely.
func permissionFilter(candidates []Candidate, allowed []string) []Candidate {
	if len(allowed) == 0 {
		return candidates
	}
	allowedSet := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allowedSet[a] = true
	}

	kept := candidates[:0]
	for _, c := range candidates {
		tags := documentPermissions(c.Document.Metadata)
		if len(tags) == 0 {
			kept = append(kept, c)
			continue
		}
		if intersects(tags, allowedSet) {
			kept = append(kept, c)
		}
	}
	return kept
}

func documentPermissions(metadata json.RawMessage) []string {
	if len(metadata) == 0 {
		return nil
	}
	var m docMetadata
	if err := json.Unmarshal(metadata, &m); err != nil {
		return nil
	}
	return m.DocumentPermissions
}

func intersects(tags []string, allowed map[string]bool) bool {
	for _, t := range tags {
		if allowed[t] {
			return true
		}
	}
	return false
}
