package attribution

import "math"

// Similarity returns the cosine similarity in [-1, 1] between a voice
// embedding and the profile centroid. Both vectors are L2-normalized before
// the dot product; a zero-norm vector on either side yields 0 rather than a
// division by zero.
//
// Pure and deterministic. Callers are responsible for dimensionality checks
// (see [Profile.CheckDimension]); mismatched lengths score only the shared
// prefix and are a caller bug.
func Similarity(embedding []float32, profile *Profile) float64 {
	return cosine(embedding, profile.Centroid)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Guard against floating-point drift outside [-1, 1].
	return math.Max(-1, math.Min(1, sim))
}
