package signets

// walk visits every node of the forest depth-first, parents before
// children, and calls fn for each node carrying a URL. Folders are only
// descended into.
func walk(roots []*BookmarkNode, fn func(*BookmarkNode)) {
	for _, n := range roots {
		if n == nil {
			continue
		}
		if !n.IsFolder() {
			fn(n)
		}
		walk(n.Children, fn)
	}
}
