package biometric

import (
	"fmt"
	"math"
)

// VectorLength is the fixed length of reference and sample embeddings
const VectorLength = 128

// Compare scores a presented sample embedding against a reference embedding.
// The result is a similarity in [0,100]: 100 for identical direction, 0 for
// opposite or degenerate vectors. Both vectors must be VectorLength long.
func Compare(sample, reference []float64) (float64, error) {
	if len(sample) != VectorLength {
		return 0, fmt.Errorf("sample embedding has length %d, want %d", len(sample), VectorLength)
	}
	if len(reference) != VectorLength {
		return 0, fmt.Errorf("reference embedding has length %d, want %d", len(reference), VectorLength)
	}

	var dot, sampleNorm, refNorm float64
	for i := range sample {
		dot += sample[i] * reference[i]
		sampleNorm += sample[i] * sample[i]
		refNorm += reference[i] * reference[i]
	}

	if sampleNorm == 0 || refNorm == 0 {
		return 0, nil
	}

	// Cosine similarity mapped from [-1,1] onto [0,100]
	cos := dot / (math.Sqrt(sampleNorm) * math.Sqrt(refNorm))
	cos = math.Max(-1, math.Min(1, cos))
	return (cos + 1) / 2 * 100, nil
}
