package retrieval

import "testing"

func TestTokenize_LowercasesStripsPunctuationKeepsHyphens(t *testing.T) {
	got := tokenize("Follow-up: the Invoice #4821 is OVERDUE!")
	want := []string{"follow-up", "invoice", "4821", "overdue"}
	if len(got) != len(want) {
		t.Fatalf("tokenize() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestTokenize_DropsStopwords(t *testing.T) {
	got := tokenize("the cat is on the mat")
	for _, tok := range got {
		if stopwords[tok] {
			t.Errorf("expected stopword %q to be dropped", tok)
		}
	}
}

func TestBM25Index_RanksMatchingDocHigher(t *testing.T) {
	texts := []string{
		"quarterly revenue figures for the finance team",
		"a completely unrelated document about gardening",
		"finance revenue and quarterly budget planning",
	}
	idx, err := newBM25Index(texts)
	if err != nil {
		t.Fatalf("newBM25Index: %v", err)
	}

	results := idx.score("quarterly finance revenue")
	if results[0].Index == 1 {
		t.Fatalf("expected gardening doc to rank last, got top result index %d", results[0].Index)
	}
	if results[0].Score <= 0 {
		t.Fatalf("expected positive top score, got %f", results[0].Score)
	}
}

func TestBM25Index_EmptyCorpusErrors(t *testing.T) {
	_, err := newBM25Index([]string{"!!!", "###", "   "})
	if err == nil {
		t.Fatal("expected error for corpus with no tokenizable content")
	}
}
