// Package index implements the in-memory inverted index over bookmark
// titles and bodies.
//
// Two fields are indexed, title (boost 2) and body (boost 1). Queries match
// any of their terms (OR) and each query term is expanded to every indexed
// term it prefixes, with a penalty growing with the length difference.
// Scoring is field-weighted tf-idf with a field length norm and a
// coordination factor. The index serializes to JSON and a deserialized
// index scores every query exactly as the one it came from.
package index

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/hazyhaar/signets/signets/internal/normalize"
)

// Field names.
const (
	FieldTitle = "title"
	FieldBody  = "body"
)

type field struct {
	name  string
	boost float64
}

// fields is iterated in this order everywhere so float sums are reproducible.
var fields = []field{
	{FieldTitle, 2},
	{FieldBody, 1},
}

// Document is the indexable projection of a bookmark record.
type Document struct {
	ID    string
	Title string
	Body  string
}

// Hit is a matching document reference with its relevance score.
type Hit struct {
	Ref   string  `json:"ref"`
	Score float64 `json:"score"`
}

type docEntry struct {
	seq   uint64
	freqs map[string]map[string]int // field -> term -> term frequency
	lens  map[string]int            // field -> token count
}

// Index is an inverted index safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*docEntry
	postings map[string]map[string]map[string]int // field -> term -> doc -> tf
	vocab    []string                             // sorted, all fields
	nextSeq  uint64
}

// New returns an empty index.
func New() *Index {
	ix := &Index{
		docs:     make(map[string]*docEntry),
		postings: make(map[string]map[string]map[string]int, len(fields)),
	}
	for _, f := range fields {
		ix.postings[f.name] = make(map[string]map[string]int)
	}
	return ix
}

// Build returns an index holding docs, added in order.
func Build(docs []Document) *Index {
	ix := New()
	for _, d := range docs {
		ix.AddDocument(d)
	}
	return ix
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docs)
}

// has reports whether id is indexed.
func (ix *Index) has(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docs[id]
	return ok
}

// AddDocument inserts doc, replacing any previous postings for doc.ID.
// A replaced document keeps its original insertion position.
func (ix *Index) AddDocument(doc Document) {
	freqs := map[string]map[string]int{
		FieldTitle: termFreqs(normalize.Tokens(doc.Title)),
		FieldBody:  termFreqs(normalize.Tokens(doc.Body)),
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	seq := ix.nextSeq
	if old, ok := ix.docs[doc.ID]; ok {
		seq = old.seq
		ix.removeLocked(doc.ID)
	} else {
		ix.nextSeq++
	}
	ix.insertLocked(doc.ID, seq, freqs)
}

// remove deletes a document. Removing an unknown id is a no-op.
func (ix *Index) remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(id)
}

func (ix *Index) insertLocked(id string, seq uint64, freqs map[string]map[string]int) {
	e := &docEntry{seq: seq, freqs: freqs, lens: make(map[string]int, len(fields))}
	for _, f := range fields {
		for term, tf := range freqs[f.name] {
			e.lens[f.name] += tf
			plist, ok := ix.postings[f.name][term]
			if !ok {
				plist = make(map[string]int)
				ix.postings[f.name][term] = plist
				ix.addVocabLocked(term)
			}
			plist[id] = tf
		}
	}
	ix.docs[id] = e
}

func (ix *Index) removeLocked(id string) {
	e, ok := ix.docs[id]
	if !ok {
		return
	}
	for _, f := range fields {
		for term := range e.freqs[f.name] {
			plist := ix.postings[f.name][term]
			delete(plist, id)
			if len(plist) == 0 {
				delete(ix.postings[f.name], term)
			}
		}
	}
	delete(ix.docs, id)
}

// addVocabLocked keeps vocab sorted and unique. Terms whose postings were
// all removed stay in vocab; lookups skip them.
func (ix *Index) addVocabLocked(term string) {
	i := sort.SearchStrings(ix.vocab, term)
	if i < len(ix.vocab) && ix.vocab[i] == term {
		return
	}
	ix.vocab = append(ix.vocab, "")
	copy(ix.vocab[i+1:], ix.vocab[i:])
	ix.vocab[i] = term
}

// Search returns every document matching at least one query term, in
// insertion order. Hits are not sorted by score. The result is never nil.
func (ix *Index) Search(query string) []Hit {
	qterms := uniq(normalize.Tokens(query))

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := []Hit{}
	if len(qterms) == 0 || len(ix.docs) == 0 {
		return hits
	}

	n := float64(len(ix.docs))
	scores := make(map[string]float64)
	for _, f := range fields {
		fieldScores := make(map[string]float64)
		matched := make(map[string]int)

		for _, qt := range qterms {
			seen := make(map[string]bool)
			for _, term := range ix.expandLocked(qt) {
				plist := ix.postings[f.name][term]
				if len(plist) == 0 {
					continue
				}
				penalty := 1.0
				if term != qt {
					diff := max(3, len(term)-len(qt))
					penalty = 1 / math.Log(float64(diff))
				}
				idf := 1 + math.Log(n/float64(len(plist)+1))
				for id, tf := range plist {
					norm := 1 / math.Sqrt(float64(ix.docs[id].lens[f.name]))
					fieldScores[id] += math.Sqrt(float64(tf)) * idf * norm * penalty
					if !seen[id] {
						seen[id] = true
						matched[id]++
					}
				}
			}
		}

		for id, sc := range fieldScores {
			coord := float64(matched[id]) / float64(len(qterms))
			scores[id] += sc * coord * f.boost
		}
	}

	for id, sc := range scores {
		if sc > 0 {
			hits = append(hits, Hit{Ref: id, Score: sc})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		return ix.docs[hits[i].Ref].seq < ix.docs[hits[j].Ref].seq
	})
	return hits
}

// expandLocked returns the indexed terms having qt as a prefix, qt first
// when present.
func (ix *Index) expandLocked(qt string) []string {
	i := sort.SearchStrings(ix.vocab, qt)
	var out []string
	for ; i < len(ix.vocab) && strings.HasPrefix(ix.vocab[i], qt); i++ {
		out = append(out, ix.vocab[i])
	}
	return out
}

func termFreqs(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func uniq(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
