package main

import (
	"fmt"
	"io"
	"strings"

	"promptpal/internal/commenttree"
	"promptpal/internal/models"
)

const indentUnit = "  "

func renderThread(w io.Writer, forest *commenttree.Forest) {
	if forest.Count() == 0 {
		fmt.Fprintln(w, "No comments yet.")
	}
	commenttree.Walk(forest, func(row commenttree.Row) bool {
		indent := strings.Repeat(indentUnit, row.Depth)
		if row.IsError() {
			fmt.Fprintf(w, "%s[%s]\n", indent, row.Err.Message)
			return true
		}
		c := row.Node.Comment
		header := fmt.Sprintf("%s (%d points", c.AuthorDisplayName, c.VoteScore)
		if vote := c.UserVote.Normalize(); vote != models.Unvoted {
			header += ", " + string(vote)
		}
		header += ")"
		if row.Node.ParentAuthorDisplayName != "" {
			header += " replying to " + row.Node.ParentAuthorDisplayName
		}
		if c.IsEdited {
			header += " (edited)"
		}
		if c.TotalRewards > 0 {
			header += fmt.Sprintf(" medals:%d", c.TotalRewards)
		}
		fmt.Fprintf(w, "%s%s [%s]\n", indent, header, c.ID)
		for _, line := range strings.Split(c.Content, "\n") {
			fmt.Fprintf(w, "%s%s%s\n", indent, indentUnit, line)
		}
		return true
	})
	if forest.Dropped > 0 {
		fmt.Fprintf(w, "(%d invalid comments hidden)\n", forest.Dropped)
	}
}

func renderTrends(w io.Writer, trends []models.Trend) {
	if len(trends) == 0 {
		fmt.Fprintln(w, "No trends yet.")
		return
	}
	for _, t := range trends {
		fmt.Fprintf(w, "%-36s %5d points  %3d comments  %s by %s\n",
			t.ID, t.VoteScore, t.CommentCount, t.Title, t.AuthorDisplayName)
	}
}
