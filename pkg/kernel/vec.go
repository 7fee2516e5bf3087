package kernel

import "math"

func sub(a, b [3]float32) [3]float64 {
	return [3]float64{
		float64(a[0]) - float64(b[0]),
		float64(a[1]) - float64(b[1]),
		float64(a[2]) - float64(b[2]),
	}
}

func cross(a, b [3]float64) [3]float64 {
	return [3]float64{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

func length(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}
