package spatial

import (
	"math"
	"sort"

	"github.com/kasuganosora/rtsmicro/game/unit"
)

// DefaultCellSize is the grid bucket edge length in map units.
const DefaultCellSize = 8.0

type cell struct{ x, y int }

// Index is a per-tick bucket grid over a fixed set of units.
// It is built once and then only read; it is not safe to mutate concurrently.
type Index struct {
	cellSize float64
	units    unit.Units
	buckets  map[cell][]int
}

// NewIndex indexes us with DefaultCellSize buckets.
func NewIndex(us unit.Units) *Index {
	return NewIndexWithCellSize(us, DefaultCellSize)
}

// NewIndexWithCellSize indexes us with the given bucket size. Non-positive sizes
// fall back to DefaultCellSize.
func NewIndexWithCellSize(us unit.Units, size float64) *Index {
	if size <= 0 {
		size = DefaultCellSize
	}
	idx := &Index{
		cellSize: size,
		units:    us,
		buckets:  make(map[cell][]int),
	}
	for i, u := range us {
		if u == nil {
			continue
		}
		c := idx.cellOf(u.Position)
		idx.buckets[c] = append(idx.buckets[c], i)
	}
	return idx
}

func (idx *Index) cellOf(p unit.Point) cell {
	return cell{
		x: int(math.Floor(p.X / idx.cellSize)),
		y: int(math.Floor(p.Y / idx.cellSize)),
	}
}

// Len returns the number of indexed units.
func (idx *Index) Len() int { return len(idx.units) }

// EnemiesInRange returns every indexed unit whose center lies within radius
// of center (inclusive), in input order.
func (idx *Index) EnemiesInRange(center unit.Point, radius float64) []*unit.Unit {
	if radius < 0 || len(idx.units) == 0 {
		return nil
	}
	lo := idx.cellOf(unit.Point{X: center.X - radius, Y: center.Y - radius})
	hi := idx.cellOf(unit.Point{X: center.X + radius, Y: center.Y + radius})

	var hits []int
	// Sparse maps with huge query boxes: walk buckets instead of cells.
	if cells := (hi.x - lo.x + 1) * (hi.y - lo.y + 1); cells > len(idx.buckets) {
		for c, ids := range idx.buckets {
			if c.x < lo.x || c.x > hi.x || c.y < lo.y || c.y > hi.y {
				continue
			}
			hits = idx.appendWithin(hits, ids, center, radius)
		}
	} else {
		for x := lo.x; x <= hi.x; x++ {
			for y := lo.y; y <= hi.y; y++ {
				hits = idx.appendWithin(hits, idx.buckets[cell{x, y}], center, radius)
			}
		}
	}
	if len(hits) == 0 {
		return nil
	}
	sort.Ints(hits)
	out := make([]*unit.Unit, len(hits))
	for i, id := range hits {
		out[i] = idx.units[id]
	}
	return out
}

func (idx *Index) appendWithin(hits, ids []int, center unit.Point, radius float64) []int {
	for _, id := range ids {
		if idx.units[id].Position.DistanceTo(center) <= radius {
			hits = append(hits, id)
		}
	}
	return hits
}
