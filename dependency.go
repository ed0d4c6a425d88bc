package gsym

import (
	"fmt"
	"io"

	"github.com/benbjohnson/immutable"
)

// DependencySet is a persistent sorted set of input byte indexes. The
// persistent representation shares structure between the many overlapping
// sets the DAG produces, and iteration is always in ascending index order,
// which keeps constraint sync deterministic.
type DependencySet struct {
	m *immutable.SortedMap[int, struct{}]
}

// NewDependencySet returns a set holding the given indexes.
func NewDependencySet(indexes ...int) *DependencySet {
	m := immutable.NewSortedMap[int, struct{}](nil)
	for _, i := range indexes {
		m = m.Set(i, struct{}{})
	}
	return &DependencySet{m: m}
}

// Len returns the number of indexes in the set.
func (s *DependencySet) Len() int { return s.m.Len() }

// Contains reports whether index is in the set.
func (s *DependencySet) Contains(index int) bool {
	_, ok := s.m.Get(index)
	return ok
}

// Add returns a set additionally holding index.
func (s *DependencySet) Add(index int) *DependencySet {
	return &DependencySet{m: s.m.Set(index, struct{}{})}
}

// Union returns the union of s and other.
func (s *DependencySet) Union(other *DependencySet) *DependencySet {
	if other == nil || other.Len() == 0 {
		return s
	}
	if s.Len() == 0 {
		return other
	}
	m := s.m
	itr := other.m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		m = m.Set(k, struct{}{})
	}
	return &DependencySet{m: m}
}

// Each calls fn for every index in ascending order.
func (s *DependencySet) Each(fn func(index int)) {
	itr := s.m.Iterator()
	for !itr.Done() {
		k, _, _ := itr.Next()
		fn(k)
	}
}

// Slice returns the indexes in ascending order.
func (s *DependencySet) Slice() []int {
	a := make([]int, 0, s.Len())
	s.Each(func(i int) { a = append(a, i) })
	return a
}

// String returns the string representation of the set.
func (s *DependencySet) String() string {
	return fmt.Sprint(s.Slice())
}

// DependencyTree groups the constraints that transitively share input bytes.
// Nodes are kept in append order; the sync routine asserts them in that
// order.
type DependencyTree struct {
	nodes []*Expr
	deps  *DependencySet
}

// newDependencyTree returns an empty tree.
func newDependencyTree() *DependencyTree {
	return &DependencyTree{deps: NewDependencySet()}
}

// AddNode appends node and folds its dependency set into the tree.
func (t *DependencyTree) AddNode(node *Expr) {
	t.nodes = append(t.nodes, node)
	t.deps = t.deps.Union(node.Deps())
}

// merge absorbs the nodes and dependencies of other.
func (t *DependencyTree) merge(other *DependencyTree) {
	t.nodes = append(t.nodes, other.nodes...)
	t.deps = t.deps.Union(other.deps)
}

// Nodes returns the constraints of the tree in append order.
func (t *DependencyTree) Nodes() []*Expr { return t.nodes }

// Deps returns the union of the dependency sets of all nodes.
func (t *DependencyTree) Deps() *DependencySet { return t.deps }

// DependencyForest partitions constraints by input byte reachability. Slot i
// holds the tree containing every constraint that depends on byte i.
type DependencyForest struct {
	forest []*DependencyTree
}

// NewDependencyForest returns a forest sized for n input bytes. The forest
// grows lazily if indexes beyond n appear.
func NewDependencyForest(n int) *DependencyForest {
	return &DependencyForest{forest: make([]*DependencyTree, n)}
}

// Find returns the tree at index, creating slots and an empty tree as
// needed.
func (f *DependencyForest) Find(index int) *DependencyTree {
	if index >= len(f.forest) {
		grown := make([]*DependencyTree, index+1)
		copy(grown, f.forest)
		f.forest = grown
	}
	if f.forest[index] == nil {
		f.forest[index] = newDependencyTree()
	}
	return f.forest[index]
}

// AddNode inserts node into the tree covering its dependency set, merging
// every tree the set touches into one.
func (f *DependencyForest) AddNode(node *Expr) {
	var tree *DependencyTree
	node.Deps().Each(func(index int) {
		other := f.Find(index)
		if tree == nil {
			tree = other
		} else if tree != other {
			tree.merge(other)
			other.deps.Each(func(j int) { f.forest[j] = tree })
		}
		f.forest[index] = tree
	})
	if tree != nil {
		tree.AddNode(node)
	}
}

// Dump writes a human readable listing of the forest.
func (f *DependencyForest) Dump(w io.Writer) {
	seen := make(map[*DependencyTree]bool)
	for i, t := range f.forest {
		if t == nil || seen[t] {
			continue
		}
		seen[t] = true
		fmt.Fprintf(w, "tree[%d]: deps=%s\n", i, t.deps)
		for _, n := range t.nodes {
			fmt.Fprintf(w, "  %s\n", n)
		}
	}
}
