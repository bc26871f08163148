package relationship

import (
	"context"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"
)

// TreeNode is one entity in a dependency tree rooted at a configured export
// entity.
type TreeNode struct {
	Entity          string
	ForeignKeyField string
	Priority        bool
	Depth           int
	Children        []*TreeNode
}

// BuildTree walks the child dependencies of root down to maxDepth levels.
// Only priority children are expanded further; non-priority children appear
// as leaves. An entity already present on the path from the root is not
// expanded again.
func (a *Analyzer) BuildTree(ctx context.Context, root string, maxDepth int) (*TreeNode, error) {
	node := &TreeNode{Entity: root, Priority: IsPriority(root)}
	onPath := map[string]struct{}{root: {}}
	if err := a.expand(ctx, node, maxDepth, onPath); err != nil {
		return nil, err
	}
	return node, nil
}

func (a *Analyzer) expand(ctx context.Context, node *TreeNode, maxDepth int, onPath map[string]struct{}) error {
	if node.Depth >= maxDepth {
		return nil
	}

	edges, err := a.DiscoverChildren(ctx, node.Entity)
	if err != nil {
		return err
	}

	for _, edge := range edges {
		if _, seen := onPath[edge.ChildEntity]; seen {
			continue
		}
		child := &TreeNode{
			Entity:          edge.ChildEntity,
			ForeignKeyField: edge.ForeignKeyField,
			Priority:        edge.Priority,
			Depth:           node.Depth + 1,
		}
		node.Children = append(node.Children, child)

		if child.Priority {
			onPath[child.Entity] = struct{}{}
			if err := a.expand(ctx, child, maxDepth, onPath); err != nil {
				return err
			}
			delete(onPath, child.Entity)
		}
	}
	return nil
}

// CountNodes returns the number of entities in the tree including the root.
func (n *TreeNode) CountNodes() int {
	count := 1
	for _, c := range n.Children {
		count += c.CountNodes()
	}
	return count
}

// Render draws the tree with box-drawing connectors. Priority entities are
// highlighted; every child is annotated with its foreign-key field, aligned
// per sibling group.
func (n *TreeNode) Render() string {
	var b strings.Builder
	b.WriteString(color.Bold.Sprint(n.Entity))
	b.WriteByte('\n')
	renderChildren(&b, n, "")
	return b.String()
}

func renderChildren(b *strings.Builder, node *TreeNode, prefix string) {
	width := 0
	for _, c := range node.Children {
		if w := runewidth.StringWidth(c.Entity); w > width {
			width = w
		}
	}

	for i, c := range node.Children {
		connector, childPrefix := "├── ", prefix+"│   "
		if i == len(node.Children)-1 {
			connector, childPrefix = "└── ", prefix+"    "
		}

		label := c.Entity
		if c.Priority {
			label = color.Green.Sprint(c.Entity)
		}
		pad := strings.Repeat(" ", width-runewidth.StringWidth(c.Entity)+2)

		b.WriteString(prefix)
		b.WriteString(connector)
		b.WriteString(label)
		b.WriteString(pad)
		b.WriteString(color.Gray.Sprintf("(via %s)", c.ForeignKeyField))
		b.WriteByte('\n')

		renderChildren(b, c, childPrefix)
	}
}
