// Package similarity provides edit-distance based string and record
// similarity scores used by brand canonicalization and deduplication.
package similarity

// Levenshtein returns the edit distance between a and b, counted in runes.
// It keeps two rows of the DP matrix, sized by the shorter string.
func Levenshtein(a, b string) int {
	if a == b {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}

// Ratio returns a similarity in [0,1]: 1 for identical strings, otherwise
// (maxLen - distance) / maxLen. Callers normalize case themselves.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	la, lb := len([]rune(a)), len([]rune(b))
	maxLen := max(la, lb)
	if maxLen == 0 {
		return 1
	}
	return float64(maxLen-Levenshtein(a, b)) / float64(maxLen)
}

// Weights combine field scores into a composite score.
type Weights struct {
	Name  float64
	Brand float64
}

// DefaultWeights favors the product name over the brand.
var DefaultWeights = Weights{Name: 0.7, Brand: 0.3}

// Composite combines a name score and a brand score with w. The result is
// clamped to [0,1].
func Composite(nameScore, brandScore float64, w Weights) float64 {
	total := w.Name + w.Brand
	if total <= 0 {
		return 0
	}
	s := (nameScore*w.Name + brandScore*w.Brand) / total
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
