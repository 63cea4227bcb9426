package client

import "context"

// NodeState tracks the lazy child pointer of a directory node.
type NodeState int

const (
	NodeUnloaded NodeState = iota
	NodeLoading
	NodeLoaded
)

// MaxTreeDepth caps traversal so a pathological hierarchy cannot recurse
// without bound.
const MaxTreeDepth = 6

// Node is one entry of the lazily loaded folder tree. Children of a
// directory stay nil until LoadChildren fetches them; the tree is
// re-fetched per expand and never cached beyond the in-memory session.
type Node struct {
	Name        string
	Path        string
	IsDir       bool
	MIME        string
	Size        int64
	Depth       int
	State       NodeState
	HasChildren bool
	Children    []*Node
}

type structureEntry struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"`
	MIME        string `json:"mime_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
	HasChildren bool   `json:"has_children,omitempty"`
}

func (e structureEntry) node() *Node {
	n := &Node{
		Name:        e.Name,
		Path:        e.Path,
		IsDir:       e.Type == "dir",
		MIME:        e.MIME,
		Size:        e.Size,
		HasChildren: e.HasChildren,
	}
	if !n.IsDir {
		n.State = NodeLoaded
	}

	return n
}

// LoadChildren fetches the immediate children of a directory node. Nodes
// at MaxTreeDepth are left unloaded.
func (c *StorageClient) LoadChildren(ctx context.Context, node *Node) error {
	if node == nil || !node.IsDir || node.State == NodeLoaded {
		return nil
	}
	if node.Depth >= MaxTreeDepth {
		node.State = NodeLoaded
		node.Children = nil
		return nil
	}

	node.State = NodeLoading
	children, err := c.ListStructure(ctx, node.Path, true)
	if err != nil {
		node.State = NodeUnloaded
		return err
	}

	for _, child := range children {
		child.Depth = node.Depth + 1
	}

	node.Children = children
	node.State = NodeLoaded
	return nil
}
