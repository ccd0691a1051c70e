package identity

// Similarity implements the Ratcliff/Obershelp "gestalt pattern matching"
// algorithm: find the longest common substring, then recurse on the
// unmatched regions to either side, summing matched characters. The
// score is 2*matches / (len(a)+len(b)), as in Python's difflib.
//
// No ecosystem library in the corpus offers this particular algorithm,
// so it is implemented here directly rather than pulled from a package.
func Similarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	if a == "" || b == "" {
		return 0
	}

	matches := matchLength([]rune(a), []rune(b))
	total := len([]rune(a)) + len([]rune(b))
	if total == 0 {
		return 0
	}
	return 2 * float64(matches) / float64(total)
}

func matchLength(a, b []rune) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	ai, bi, length := longestCommonSubstring(a, b)
	if length == 0 {
		return 0
	}

	total := length
	total += matchLength(a[:ai], b[:bi])
	total += matchLength(a[ai+length:], b[bi+length:])
	return total
}

// longestCommonSubstring returns the start index in a, start index in b,
// and length of the longest run shared by both slices.
func longestCommonSubstring(a, b []rune) (int, int, int) {
	bestA, bestB, bestLen := 0, 0, 0

	dp := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		prev := make([]int, len(b)+1)
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				prev[j] = dp[j-1] + 1
				if prev[j] > bestLen {
					bestLen = prev[j]
					bestA = i - prev[j]
					bestB = j - prev[j]
				}
			}
		}
		dp = prev
	}

	return bestA, bestB, bestLen
}
