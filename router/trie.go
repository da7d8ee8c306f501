package router

// node is one Route Node in the path trie (spec.md §3). Invariant: at most
// one agent handler per node. Nodes are created during registration and
// become immutable after the first request is served (spec.md §3 lifecycle,
// §5 "the route trie is written only during startup").
type node struct {
	path     Path
	children map[string]*node
	mws      []Middleware
	handler  Handler
	tool     *ToolDescriptor
}

func newNode(path Path) *node {
	return &node{path: path, children: make(map[string]*node)}
}

// descend walks segs from n, creating intermediate nodes as needed, and
// returns the leaf node for the full path.
func (n *node) descend(segs []string) *node {
	cur := n
	built := cur.path
	for _, seg := range segs {
		child, ok := cur.children[seg]
		if !ok {
			built = Path(string(built.Normalize()))
			if built == "/" {
				built = Path("/" + seg)
			} else {
				built = built + Path("/"+seg)
			}
			child = newNode(built)
			cur.children[seg] = child
		}
		cur = child
	}
	return cur
}

// lookup resolves the most specific matching node for segs, per spec.md
// §4.1's "walks the trie from root to the most specific matching node". It
// returns the node and the list of ancestor nodes from root to that node
// (inclusive), used to collect middlewares in root-first order.
func (n *node) lookup(segs []string) (target *node, chain []*node) {
	cur := n
	chain = append(chain, cur)
	for _, seg := range segs {
		child, ok := cur.children[seg]
		if !ok {
			return nil, chain
		}
		cur = child
		chain = append(chain, cur)
	}
	return cur, chain
}

// walk invokes fn for n and every descendant node, depth-first. Used to
// enumerate all tool descriptors for Registry()/AgentAsTool.
func (n *node) walk(fn func(*node)) {
	fn(n)
	for _, child := range n.children {
		child.walk(fn)
	}
}
