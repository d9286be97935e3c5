package bulkloader

import (
	"bufio"
	"container/heap"
	"io"
	"os"

	"github.com/aleksaelezovic/trigo/pkg/store"
)

// runReader streams fixed-size records from one spilled run file in
// ascending order (each file was already sorted before being written).
type runReader struct {
	f   *os.File
	r   *bufio.Reader
	cur []byte
	eof bool
}

func newRunReader(path string) (*runReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	rr := &runReader{f: f, r: bufio.NewReaderSize(f, 64*1024)}
	if err := rr.advance(); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return rr, nil
}

func (rr *runReader) advance() error {
	buf := make([]byte, recordSize)
	if _, err := io.ReadFull(rr.r, buf); err != nil {
		rr.eof = true
		rr.cur = nil
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	rr.cur = buf
	return nil
}

func (rr *runReader) close() error { return rr.f.Close() }

// runHeap is a min-heap of active run readers ordered by their current
// record's bytes, driving the k-way merge of one index's spilled runs.
type runHeap []*runReader

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return string(h[i].cur) < string(h[j].cur) }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*runReader)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeInto k-way merges runPaths' sorted records, writing each distinct
// key into table via txn. Duplicate keys (the same quad spilled twice
// across different chunks, e.g. re-loading overlapping data) collapse to
// one index entry, matching InsertQuadInTxn's idempotent Set semantics.
func mergeInto(txn store.Transaction, table store.Table, runPaths []string) error {
	h := make(runHeap, 0, len(runPaths))
	for _, p := range runPaths {
		rr, err := newRunReader(p)
		if err != nil {
			return err
		}
		if rr.eof {
			rr.close()
			continue
		}
		h = append(h, rr)
	}
	heap.Init(&h)

	var last []byte
	empty := []byte{}
	for h.Len() > 0 {
		top := h[0]
		key := top.cur
		if last == nil || string(key) != string(last) {
			if err := txn.Set(table, append([]byte(nil), key...), empty); err != nil {
				return err
			}
			last = key
		}
		if err := top.advance(); err == io.EOF {
			heap.Pop(&h)
			top.close()
		} else if err != nil {
			return err
		} else {
			heap.Fix(&h, 0)
		}
	}
	return nil
}

// install runs the writer-exclusive phase of the pipeline: merge each
// index's spilled runs directly into its table, then write the
// dictionary and graph-registry rows collected while parsing (§4.4 step
// 4). The merge runs before the dictionary/graph writes so a failure
// partway through the (larger, riskier) index merge never leaves
// dictionary rows referencing index entries that were never installed.
func (l *Loader) install(runFiles map[store.Table][]string, dict []internedString, graphs map[store.EncodedTerm]struct{}) error {
	bl, err := l.store.BeginBulkLoad()
	if err != nil {
		return err
	}
	defer func() {
		for _, paths := range runFiles {
			for _, p := range paths {
				os.Remove(p)
			}
		}
	}()

	for _, order := range indexOrders {
		paths := runFiles[order.table]
		if len(paths) == 0 {
			continue
		}
		if err := mergeInto(bl.RawTxn(), order.table, paths); err != nil {
			bl.Rollback()
			return err
		}
	}

	seen := make(map[store.EncodedTerm]bool, len(dict))
	for _, d := range dict {
		if seen[d.encoded] {
			continue
		}
		seen[d.encoded] = true
		value := d.value
		if err := bl.Engine().InternGraphLabel(bl.RawTxn(), d.encoded, &value); err != nil {
			bl.Rollback()
			return err
		}
	}

	for enc := range graphs {
		if err := bl.RawTxn().Set(store.TableGraphs, append([]byte(nil), enc[:]...), []byte{}); err != nil {
			bl.Rollback()
			return err
		}
	}

	return bl.Commit()
}
