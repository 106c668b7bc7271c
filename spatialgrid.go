package tether

import (
	"math"

	"github.com/akmonengine/tether/actor"
	"github.com/go-gl/mathgl/mgl64"
)

// CellKey is the integer coordinate of a grid cell
type CellKey struct {
	X, Y, Z int
}

// Cell holds the indices of the boxes overlapping it
type Cell struct {
	indices []int
}

// Pair of box indices whose bounds overlap, A < B
type Pair struct {
	A, B int
}

// SpatialGrid is a uniform hashed grid used as contact broad phase. Boxes are
// inserted by index; several cells may share a bucket, so candidates are
// always confirmed with a bounds test.
type SpatialGrid struct {
	cellSize float64
	cells    []Cell
	cellMask int

	boxes []actor.AABB
	seen  []bool
}

// NewSpatialGrid creates a grid of cells of the given size, the number of
// buckets rounded up to a power of two
func NewSpatialGrid(cellSize float64, numCells int) *SpatialGrid {
	numCells = nextPowerOfTwo(numCells)

	cells := make([]Cell, numCells)
	for i := range cells {
		cells[i].indices = make([]int, 0, 8)
	}

	return &SpatialGrid{
		cellSize: cellSize,
		cells:    cells,
		cellMask: numCells - 1,
	}
}

func nextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n++
	return n
}

// Insert adds box under index to every cell it covers
func (sg *SpatialGrid) Insert(index int, box actor.AABB) {
	for len(sg.boxes) <= index {
		sg.boxes = append(sg.boxes, actor.AABB{})
	}
	sg.boxes[index] = box

	sg.eachCell(box, func(cell *Cell) {
		cell.indices = append(cell.indices, index)
	})
}

func (sg *SpatialGrid) eachCell(box actor.AABB, fn func(cell *Cell)) {
	minCell := sg.worldToCell(box.Min)
	maxCell := sg.worldToCell(box.Max)

	for x := minCell.X; x <= maxCell.X; x++ {
		for y := minCell.Y; y <= maxCell.Y; y++ {
			for z := minCell.Z; z <= maxCell.Z; z++ {
				fn(&sg.cells[sg.hashCell(CellKey{x, y, z})])
			}
		}
	}
}

func (sg *SpatialGrid) Clear() {
	for i := range sg.cells {
		sg.cells[i].indices = sg.cells[i].indices[:0]
	}
	sg.boxes = sg.boxes[:0]
}

// Pairs returns every pair of inserted boxes that overlap, each once, in a
// deterministic order
func (sg *SpatialGrid) Pairs() []Pair {
	var pairs []Pair
	if cap(sg.seen) < len(sg.boxes) {
		sg.seen = make([]bool, len(sg.boxes))
	}
	seen := sg.seen[:len(sg.boxes)]
	touched := make([]int, 0, 16)

	for a, box := range sg.boxes {
		sg.eachCell(box, func(cell *Cell) {
			for _, b := range cell.indices {
				if b <= a || seen[b] {
					continue
				}
				seen[b] = true
				touched = append(touched, b)
				if box.Overlaps(sg.boxes[b]) {
					pairs = append(pairs, Pair{A: a, B: b})
				}
			}
		})

		for _, b := range touched {
			seen[b] = false
		}
		touched = touched[:0]
	}

	return pairs
}

func (sg *SpatialGrid) worldToCell(pos mgl64.Vec3) CellKey {
	return CellKey{
		X: int(math.Floor(pos.X() / sg.cellSize)),
		Y: int(math.Floor(pos.Y() / sg.cellSize)),
		Z: int(math.Floor(pos.Z() / sg.cellSize)),
	}
}

func (sg *SpatialGrid) hashCell(key CellKey) int {
	h := (key.X * 73856093) ^ (key.Y * 19349663) ^ (key.Z * 83492791)
	return h & sg.cellMask
}
