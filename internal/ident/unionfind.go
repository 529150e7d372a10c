package ident

// unionFind is a disjoint-set forest with union by size and path compression.
// Element ids are dense ints assigned by the matcher in first-seen order,
// which keeps partition traversal deterministic.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind() *unionFind {
	return &unionFind{}
}

// add appends a new singleton set and returns its id.
func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	u.size = append(u.size, 1)
	return id
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// sameSet reports whether a and b belong to one partition.
func (u *unionFind) sameSet(a, b int) bool {
	return u.find(a) == u.find(b)
}
