package grid

import (
	"fmt"
	"math"
)

// eps is the tolerance below which twice a triangle's area counts as zero.
const eps = 1e-12

// cleanOutline drops repeated points, a closing point equal to the first,
// and vertices collinear with their neighbours.
func cleanOutline(in [][2]float64) [][2]float64 {
	pts := make([][2]float64, 0, len(in))
	for _, p := range in {
		if len(pts) > 0 && pts[len(pts)-1] == p {
			continue
		}
		pts = append(pts, p)
	}
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}

	for changed := true; changed && len(pts) >= 3; {
		changed = false
		for i := range pts {
			prev := pts[(i+len(pts)-1)%len(pts)]
			next := pts[(i+1)%len(pts)]
			if math.Abs(cross2(prev, pts[i], next)) <= eps {
				pts = append(pts[:i], pts[i+1:]...)
				changed = true
				break
			}
		}
	}
	return pts
}

// signedArea is positive for counter-clockwise outlines.
func signedArea(pts [][2]float64) float64 {
	var a float64
	for i := range pts {
		p, q := pts[i], pts[(i+1)%len(pts)]
		a += p[0]*q[1] - q[0]*p[1]
	}
	return a / 2
}

func reverse(pts [][2]float64) {
	for i, j := 0, len(pts)-1; i < j; i, j = i+1, j-1 {
		pts[i], pts[j] = pts[j], pts[i]
	}
}

// cross2 is twice the signed area of (a, b, c).
func cross2(a, b, c [2]float64) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// inTriangle reports whether p lies inside or on the CCW triangle (a, b, c).
func inTriangle(p, a, b, c [2]float64) bool {
	return cross2(a, b, p) >= 0 && cross2(b, c, p) >= 0 && cross2(c, a, p) >= 0
}

// earClip triangulates a simple counter-clockwise polygon. Every returned
// triangle is CCW with non-zero area.
func earClip(pts [][2]float64) ([][3]int, error) {
	idx := make([]int, len(pts))
	for i := range idx {
		idx[i] = i
	}
	tris := make([][3]int, 0, len(pts)-2)

	for len(idx) > 3 {
		clipped := false
		for i := range idx {
			ia, ib, ic := idx[(i+len(idx)-1)%len(idx)], idx[i], idx[(i+1)%len(idx)]
			a, b, c := pts[ia], pts[ib], pts[ic]
			if cross2(a, b, c) <= eps {
				continue // reflex or flat corner
			}
			ear := true
			for _, j := range idx {
				if j == ia || j == ib || j == ic {
					continue
				}
				if inTriangle(pts[j], a, b, c) {
					ear = false
					break
				}
			}
			if !ear {
				continue
			}
			tris = append(tris, [3]int{ia, ib, ic})
			idx = append(idx[:i], idx[i+1:]...)
			clipped = true
			break
		}
		if !clipped {
			return nil, fmt.Errorf("%w: outline is not a simple polygon", ErrDegenerate)
		}
	}

	a, b, c := pts[idx[0]], pts[idx[1]], pts[idx[2]]
	if cross2(a, b, c) <= eps {
		return nil, fmt.Errorf("%w: final triangle has zero area", ErrDegenerate)
	}
	return append(tris, [3]int{idx[0], idx[1], idx[2]}), nil
}
