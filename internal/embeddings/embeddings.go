// Package embeddings turns label results into fixed-size vectors for the
// catalog, so frames with similar content can be found by vector distance.
package embeddings

import (
	"math"

	"github.com/bdougie/autodataset/internal/models"
)

// ClassHistogram counts detections per class id. Detections with an id
// outside [0, numClasses) are ignored.
func ClassHistogram(result models.LabelResult, numClasses int) []float32 {
	hist := make([]float32, numClasses)
	for _, d := range result.Detections {
		if d.ClassID >= 0 && d.ClassID < numClasses {
			hist[d.ClassID]++
		}
	}
	return hist
}

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
	return v
}

// FromResult is the catalog embedding of a label result: the unit-length
// class histogram.
func FromResult(result models.LabelResult, numClasses int) []float32 {
	return Normalize(ClassHistogram(result, numClasses))
}
