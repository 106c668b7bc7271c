package tether

import (
	"slices"
	"sort"
)

// reverseCuthillMcKee returns a permutation of the nodes of an undirected
// graph that keeps neighbours close together, so the matrix whose pattern is
// the graph has a small bandwidth. Each connected component is walked
// breadth first from its node of lowest degree, visiting neighbours by
// increasing degree; the final order is reversed.
func reverseCuthillMcKee(adjacency [][]int) []int {
	n := len(adjacency)
	order := make([]int, 0, n)
	visited := make([]bool, n)
	degree := func(i int) int { return len(adjacency[i]) }

	for len(order) < n {
		start := -1
		for i := range n {
			if !visited[i] && (start < 0 || degree(i) < degree(start)) {
				start = i
			}
		}
		visited[start] = true
		order = append(order, start)

		for head := len(order) - 1; head < len(order); head++ {
			first := len(order)
			for _, next := range adjacency[order[head]] {
				if !visited[next] {
					visited[next] = true
					order = append(order, next)
				}
			}
			level := order[first:]
			sort.SliceStable(level, func(a, b int) bool {
				return degree(level[a]) < degree(level[b])
			})
		}
	}

	slices.Reverse(order)
	return order
}

// bandwidth of the graph under a node order, max |pos(i) - pos(j)| over edges
func bandwidth(adjacency [][]int, order []int) int {
	position := make([]int, len(order))
	for k, i := range order {
		position[i] = k
	}
	width := 0
	for i, neighbours := range adjacency {
		for _, j := range neighbours {
			width = max(width, abs(position[i]-position[j]))
		}
	}
	return width
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
