package pointcloud

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// RadiusOutlierRemoval returns a new cloud holding the points of cloud that have at least
// minNeighbors other points within radius (inclusive). A non-positive radius or minNeighbors keeps
// every point.
func RadiusOutlierRemoval(cloud PointCloud, radius float64, minNeighbors int) *BasicPointCloud {
	out := NewBasicPointCloud(cloud.Size())
	if radius <= 0 || minNeighbors <= 0 {
		cloud.Iterate(0, 0, func(p r3.Vector, intensity float64) bool {
			out.Push(p, intensity)
			return true
		})
		return out
	}
	if cloud.Size() == 0 {
		return out
	}

	queries := make(kdtree.Points, 0, cloud.Size())
	cloud.Iterate(0, 0, func(p r3.Vector, _ float64) bool {
		queries = append(queries, kdtree.Point{p.X, p.Y, p.Z})
		return true
	})
	// the tree reorders its backing slice
	tree := kdtree.New(append(kdtree.Points(nil), queries...), false)

	i := 0
	cloud.Iterate(0, 0, func(p r3.Vector, intensity float64) bool {
		// kdtree.Point distances are squared
		keeper := kdtree.NewDistKeeper(radius * radius)
		tree.NearestSet(keeper, queries[i])
		i++
		found := 0
		for _, c := range keeper.Heap {
			if c.Comparable != nil {
				found++
			}
		}
		// the query point finds itself
		if found-1 >= minNeighbors {
			out.Push(p, intensity)
		}
		return true
	})
	return out
}
