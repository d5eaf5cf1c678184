package gitver

import (
	"github.com/emirpasic/gods/trees/binaryheap"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	walkQueued uint8 = 1 << iota
	walkPopped
	walkExcluded
)

// rangeWalker yields the commits reachable from one tip but not from an
// excluded tip, newest committer time first. Both sides are walked together
// and exclusion is painted onto parents as it spreads, so the walk ends as
// soon as only excluded commits are queued instead of loading the whole
// excluded history up front.
type rangeWalker struct {
	load  func(plumbing.Hash) (*object.Commit, error)
	queue *binaryheap.Heap
	state map[plumbing.Hash]uint8
	// interesting counts queued commits that are not excluded.
	interesting int
}

func newRangeWalker(load func(plumbing.Hash) (*object.Commit, error)) *rangeWalker {
	return &rangeWalker{
		load: load,
		queue: binaryheap.NewWith(func(a, b interface{}) int {
			if a.(*object.Commit).Committer.When.Before(b.(*object.Commit).Committer.When) {
				return 1
			}
			return -1
		}),
		state: make(map[plumbing.Hash]uint8),
	}
}

func (w *rangeWalker) push(c *object.Commit, excluded bool) error {
	s, seen := w.state[c.Hash]
	if !seen {
		s = walkQueued
		if excluded {
			s |= walkExcluded
		} else {
			w.interesting++
		}
		w.state[c.Hash] = s
		w.queue.Push(c)
		return nil
	}

	if !excluded || s&walkExcluded != 0 {
		return nil
	}
	w.state[c.Hash] = s | walkExcluded
	if s&walkPopped == 0 {
		w.interesting--
		return nil
	}

	// already emitted under clock skew; its parents are queued as
	// interesting and must be repainted
	return w.pushParents(c, true)
}

func (w *rangeWalker) pushParents(c *object.Commit, excluded bool) error {
	for _, hash := range c.ParentHashes {
		parent, err := w.load(hash)
		if err != nil {
			return &LookupError{Kind: "commit", Name: hash.String(), Err: err}
		}
		if err := w.push(parent, excluded); err != nil {
			return err
		}
	}
	return nil
}

// next returns the next commit to emit, or nil when the range is exhausted.
func (w *rangeWalker) next() (*object.Commit, error) {
	for w.interesting > 0 {
		v, ok := w.queue.Pop()
		if !ok {
			return nil, nil
		}
		c := v.(*object.Commit)
		s := w.state[c.Hash]
		w.state[c.Hash] = s | walkPopped

		excluded := s&walkExcluded != 0
		if !excluded {
			w.interesting--
		}
		if err := w.pushParents(c, excluded); err != nil {
			return nil, err
		}
		if !excluded {
			return c, nil
		}
	}
	return nil, nil
}
