package commenttree

import (
	"fmt"

	"promptpal/internal/models"
	"promptpal/internal/utils"
)

// Row is one line of a rendered thread. Error rows carry Err and no Node.
type Row struct {
	Node  *models.CommentNode
	Depth int
	Err   *utils.AppError
}

// IsError reports whether the row stands in for a subtree that was not traversed.
func (r Row) IsError() bool {
	return r.Err != nil
}

// Walk visits the forest depth-first in display order. A node deeper than
// MaxDepth is replaced by a single error row and its subtree is skipped.
// Returning false from fn stops the walk.
func Walk(forest *Forest, fn func(Row) bool) {
	if forest == nil {
		return
	}
	type frame struct {
		node  *models.CommentNode
		depth int
	}
	stack := make([]frame, 0, len(forest.Roots))
	for i := len(forest.Roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{forest.Roots[i], 0})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if f.depth > MaxDepth {
			err := utils.NewAppError(utils.ErrDepthExceeded,
				fmt.Sprintf("Reply %s is nested deeper than %d levels", f.node.Comment.ID, MaxDepth), nil)
			if !fn(Row{Depth: f.depth, Err: err}) {
				return
			}
			continue
		}
		if !fn(Row{Node: f.node, Depth: f.depth}) {
			return
		}
		for i := len(f.node.Replies) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Replies[i], f.depth + 1})
		}
	}
}

// Render collects every row Walk produces.
func Render(forest *Forest) []Row {
	var rows []Row
	Walk(forest, func(r Row) bool {
		rows = append(rows, r)
		return true
	})
	return rows
}
