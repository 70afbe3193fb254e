package index

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/kailas-cloud/docdex/internal/domain/collection/indexspec"
	"github.com/kailas-cloud/docdex/internal/domain/document"
	"github.com/kailas-cloud/docdex/internal/domain/query/filter"
)

// BM25 parameters.
const (
	k1 = 1.2
	b  = 0.75
)

type textPosting struct {
	rows *roaring.Bitmap
	tf   map[RowID]int
}

// Text is an inverted index over the string values of its paths, scored with
// BM25.
type Text struct {
	spec        indexspec.Spec
	postings    map[string]*textPosting
	docLengths  map[RowID]int
	docTerms    map[RowID][]string
	totalLength int64
	rows        *roaring.Bitmap
}

// NewText creates an empty text index.
func NewText(spec indexspec.Spec) *Text {
	return &Text{
		spec:       spec,
		postings:   make(map[string]*textPosting),
		docLengths: make(map[RowID]int),
		docTerms:   make(map[RowID][]string),
		rows:       roaring.New(),
	}
}

// Spec implements Index.
func (t *Text) Spec() indexspec.Spec { return t.spec }

// Multikey implements Index.
func (t *Text) Multikey() bool { return true }

// Len implements Index.
func (t *Text) Len() int { return int(t.rows.GetCardinality()) }

// Rows implements Index.
func (t *Text) Rows() *roaring.Bitmap { return t.rows.Clone() }

// Check implements Index.
func (t *Text) Check(RowID, *document.Document) error { return nil }

func (t *Text) tokens(d *document.Document) []string {
	var out []string
	for _, p := range t.spec.Paths() {
		for _, v := range d.Resolve(p) {
			out = appendTokens(out, v)
		}
	}
	return out
}

func appendTokens(out []string, v document.Value) []string {
	switch v.Kind() {
	case document.KindString:
		return append(out, filter.Tokenize(v.StringValue())...)
	case document.KindArray:
		for _, e := range v.ArrayValue() {
			if e.Kind() == document.KindString {
				out = append(out, filter.Tokenize(e.StringValue())...)
			}
		}
	}
	return out
}

// Add implements Index. Documents without any token are not indexed.
func (t *Text) Add(row RowID, d *document.Document) {
	tokens := t.tokens(d)
	if len(tokens) == 0 {
		return
	}
	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}
	terms := make([]string, 0, len(tf))
	for term, n := range tf {
		p, ok := t.postings[term]
		if !ok {
			p = &textPosting{rows: roaring.New(), tf: make(map[RowID]int)}
			t.postings[term] = p
		}
		p.rows.Add(row)
		p.tf[row] = n
		terms = append(terms, term)
	}
	t.docTerms[row] = terms
	t.docLengths[row] = len(tokens)
	t.totalLength += int64(len(tokens))
	t.rows.Add(row)
}

// Remove implements Index.
func (t *Text) Remove(row RowID, _ *document.Document) {
	terms, ok := t.docTerms[row]
	if !ok {
		return
	}
	for _, term := range terms {
		p := t.postings[term]
		p.rows.Remove(row)
		delete(p.tf, row)
		if p.rows.IsEmpty() {
			delete(t.postings, term)
		}
	}
	t.totalLength -= int64(t.docLengths[row])
	delete(t.docLengths, row)
	delete(t.docTerms, row)
	t.rows.Remove(row)
}

// Search scores every row containing at least one of the terms.
func (t *Text) Search(terms []string) map[RowID]float64 {
	scores := make(map[RowID]float64)
	n := len(t.docLengths)
	if n == 0 {
		return scores
	}
	avgDL := float64(t.totalLength) / float64(n)

	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true
		p, ok := t.postings[term]
		if !ok {
			continue
		}
		idf := idf(n, int(p.rows.GetCardinality()))
		it := p.rows.Iterator()
		for it.HasNext() {
			row := it.Next()
			tf := float64(p.tf[row])
			docLen := float64(t.docLengths[row])
			scores[row] += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*(docLen/avgDL)))
		}
	}
	return scores
}

// IDF = log(1 + (N - n + 0.5) / (n + 0.5))
func idf(total, df int) float64 {
	N := float64(total)
	n := float64(df)
	return math.Log(1 + (N-n+0.5)/(n+0.5))
}
