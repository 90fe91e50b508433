// Package commenttree turns the flat comment list of one trend into an ordered
// thread forest and performs copy-on-write mutations on that list.
//
// Every function is pure: the input list is never modified and the forest is
// a function of the list alone.
package commenttree

import (
	"slices"
	"strings"

	"promptpal/internal/models"
)

// MaxDepth is the deepest reply level that is traversed. Roots are depth 0.
const MaxDepth = 50

// Forest is the displayable thread of one trend.
type Forest struct {
	Roots []*models.CommentNode
	// Total is the number of records received, valid or not.
	Total int
	// Dropped counts records excluded as invalid or duplicated.
	Dropped int
}

// IsValid reports whether a record can be placed in the thread.
func IsValid(c *models.Comment) bool {
	return c.ID != "" && c.AuthorID != "" && strings.TrimSpace(c.Content) != ""
}

// BuildTree links comments to their parents and orders the result: roots
// newest first, replies oldest first. A parent reference that does not
// resolve makes the comment a root.
func BuildTree(comments []models.Comment) *Forest {
	forest := &Forest{Total: len(comments), Roots: []*models.CommentNode{}}

	nodes := make([]*models.CommentNode, 0, len(comments))
	index := make(map[string]int, len(comments))
	for i := range comments {
		c := &comments[i]
		if !IsValid(c) {
			continue
		}
		if _, dup := index[c.ID]; dup {
			continue
		}
		index[c.ID] = len(nodes)
		nodes = append(nodes, &models.CommentNode{Comment: c.Clone(), Replies: []*models.CommentNode{}})
	}
	forest.Dropped = forest.Total - len(nodes)

	parent := make([]int, len(nodes))
	for i, n := range nodes {
		parent[i] = -1
		if !n.Comment.HasParent() {
			continue
		}
		if p, ok := index[*n.Comment.ParentID]; ok && p != i {
			parent[i] = p
		}
	}
	breakCycles(nodes, parent)

	for i, n := range nodes {
		if p := parent[i]; p >= 0 {
			nodes[p].Replies = append(nodes[p].Replies, n)
			n.ParentAuthorDisplayName = nodes[p].Comment.AuthorDisplayName
		} else {
			forest.Roots = append(forest.Roots, n)
		}
	}

	slices.SortFunc(forest.Roots, newestFirst)
	for _, n := range nodes {
		slices.SortFunc(n.Replies, oldestFirst)
	}
	return forest
}

// breakCycles detaches one member of every parent cycle so that each valid
// comment is reachable from a root. The oldest member becomes the root.
func breakCycles(nodes []*models.CommentNode, parent []int) {
	const (
		unvisited = iota
		onPath
		done
	)
	state := make([]int, len(nodes))
	path := make([]int, 0, 16)

	for start := range nodes {
		if state[start] != unvisited {
			continue
		}
		path = path[:0]
		cur := start
		for cur >= 0 && state[cur] == unvisited {
			state[cur] = onPath
			path = append(path, cur)
			cur = parent[cur]
		}
		if cur >= 0 && state[cur] == onPath {
			cycle := path[slices.Index(path, cur):]
			oldest := slices.MinFunc(cycle, func(a, b int) int {
				return oldestFirst(nodes[a], nodes[b])
			})
			parent[oldest] = -1
		}
		for _, i := range path {
			state[i] = done
		}
	}
}

func oldestFirst(a, b *models.CommentNode) int {
	if c := a.Comment.CreatedAt.Compare(b.Comment.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Comment.ID, b.Comment.ID)
}

func newestFirst(a, b *models.CommentNode) int {
	if c := b.Comment.CreatedAt.Compare(a.Comment.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.Comment.ID, b.Comment.ID)
}

// Flatten exports a forest back to a flat list in pre-order. Parent
// references are kept as they were, so BuildTree(Flatten(f)) reproduces f.
func Flatten(forest *Forest) []models.Comment {
	if forest == nil {
		return nil
	}
	out := make([]models.Comment, 0, forest.Total)
	stack := make([]*models.CommentNode, 0, len(forest.Roots))
	for i := len(forest.Roots) - 1; i >= 0; i-- {
		stack = append(stack, forest.Roots[i])
	}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		out = append(out, n.Comment.Clone())
		for i := len(n.Replies) - 1; i >= 0; i-- {
			stack = append(stack, n.Replies[i])
		}
	}
	return out
}

// Count returns the number of comments placed in the forest.
func (f *Forest) Count() int {
	return f.Total - f.Dropped
}
