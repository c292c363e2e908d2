package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrCorrupt is returned when a blob cannot be decoded into an index.
var ErrCorrupt = errors.New("index: corrupt blob")

type snapshot struct {
	Docs []snapshotDoc `json:"docs"`
}

type snapshotDoc struct {
	ID    string                    `json:"id"`
	Freqs map[string]map[string]int `json:"tf"`
}

// Serialize encodes the index as JSON. Documents are written in insertion
// order so a restored index keeps the same tie order.
func (ix *Index) Serialize() ([]byte, error) {
	ix.mu.RLock()
	ids := make([]string, 0, len(ix.docs))
	for id := range ix.docs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ix.docs[ids[i]].seq < ix.docs[ids[j]].seq })

	snap := snapshot{Docs: make([]snapshotDoc, 0, len(ids))}
	for _, id := range ids {
		snap.Docs = append(snap.Docs, snapshotDoc{ID: id, Freqs: ix.docs[id].freqs})
	}
	data, err := json.Marshal(snap)
	ix.mu.RUnlock()

	if err != nil {
		return nil, fmt.Errorf("index: serialize: %w", err)
	}
	return data, nil
}

// Deserialize restores an index produced by Serialize.
func Deserialize(blob []byte) (*Index, error) {
	var snap snapshot
	if err := json.Unmarshal(blob, &snap); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	ix := New()
	for _, d := range snap.Docs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: document without id", ErrCorrupt)
		}
		freqs := make(map[string]map[string]int, len(fields))
		for _, f := range fields {
			freqs[f.name] = d.Freqs[f.name]
			if freqs[f.name] == nil {
				freqs[f.name] = map[string]int{}
			}
		}
		if old, ok := ix.docs[d.ID]; ok {
			ix.removeLocked(d.ID)
			ix.insertLocked(d.ID, old.seq, freqs)
			continue
		}
		ix.insertLocked(d.ID, ix.nextSeq, freqs)
		ix.nextSeq++
	}
	return ix, nil
}
