package retrieval

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// bm25K1 and bm25B are the classic Okapi BM25 tuning constants.
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true,
}

// tokenize lowercases, strips punctuation (keeping hyphens, since
// hyphenated terms like "follow-up" carry meaning the split halves lose),
// and drops stopwords.
func tokenize(text string) []string {
	lower := strings.ToLower(text)
	var fields []string
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			fields = append(fields, b.String())
			b.Reset()
		}
	}
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" || stopwords[f] {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// bm25Doc is one document in an in-memory BM25 corpus.
type bm25Doc struct {
	index     int
	terms     []string
	termFreqs map[string]int
	length    int
}

// bm25Index is a from-scratch BM25 corpus built over a fixed candidate
// set, never persisted, discarded after scoring one query.
type bm25Index struct {
	docs    []bm25Doc
	df      map[string]int // document frequency per term
	avgLen  float64
	idf     map[string]float64
}

// newBM25Index builds an index over texts. Returns an error if every
// document tokenizes to nothing (e.g. all-punctuation corpus), so the
// caller can degrade to dense-only per spec.
func newBM25Index(texts []string) (*bm25Index, error) {
	idx := &bm25Index{df: make(map[string]int)}
	totalLen := 0
	nonEmpty := 0

	for i, text := range texts {
		terms := tokenize(text)
		tf := make(map[string]int, len(terms))
		seen := make(map[string]bool, len(terms))
		for _, term := range terms {
			tf[term]++
			if !seen[term] {
				idx.df[term]++
				seen[term] = true
			}
		}
		if len(terms) > 0 {
			nonEmpty++
		}
		idx.docs = append(idx.docs, bm25Doc{index: i, terms: terms, termFreqs: tf, length: len(terms)})
		totalLen += len(terms)
	}

	if nonEmpty == 0 {
		return nil, errEmptyCorpus
	}

	idx.avgLen = float64(totalLen) / float64(len(idx.docs))
	idx.idf = make(map[string]float64, len(idx.df))
	n := float64(len(idx.docs))
	for term, df := range idx.df {
		idx.idf[term] = math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
	}
	return idx, nil
}

var errEmptyCorpus = bm25Err("retrieval: bm25 corpus has no tokenizable content")

type bm25Err string

func (e bm25Err) Error() string { return string(e) }

// score ranks every document in the index against query, highest first.
// Returns (document index, score) pairs.
type bm25Result struct {
	Index int
	Score float64
}

func (idx *bm25Index) score(query string) []bm25Result {
	qterms := tokenize(query)
	results := make([]bm25Result, len(idx.docs))

	for _, doc := range idx.docs {
		var score float64
		for _, qt := range qterms {
			tf, ok := doc.termFreqs[qt]
			if !ok {
				continue
			}
			idf := idx.idf[qt]
			num := float64(tf) * (bm25K1 + 1)
			den := float64(tf) + bm25K1*(1-bm25B+bm25B*float64(doc.length)/idx.avgLen)
			score += idf * num / den
		}
		results[doc.index] = bm25Result{Index: doc.index, Score: score}
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results
}
