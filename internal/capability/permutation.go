package capability

import "fmt"

// maxPermutationSlots bounds N so that N! stays small.
const maxPermutationSlots = 6

// Permutations returns every permutation of {0..n-1} in lexicographic
// order. The identity is always first. Entry order[k] = j means slot k
// would receive the capability currently held by slot j.
func Permutations(n int) ([][]int, error) {
	if n < 0 || n > maxPermutationSlots {
		return nil, fmt.Errorf("permutations: n=%d outside [0,%d]", n, maxPermutationSlots)
	}
	if n == 0 {
		return nil, nil
	}

	out := make([][]int, 0, factorial(n))
	used := make([]bool, n)
	cur := make([]int, 0, n)

	var gen func()
	gen = func() {
		if len(cur) == n {
			out = append(out, append([]int(nil), cur...))
			return
		}
		for v := 0; v < n; v++ {
			if used[v] {
				continue
			}
			used[v] = true
			cur = append(cur, v)
			gen()
			cur = cur[:len(cur)-1]
			used[v] = false
		}
	}
	gen()
	return out, nil
}

func factorial(n int) int {
	f := 1
	for i := 2; i <= n; i++ {
		f *= i
	}
	return f
}

func isIdentity(order []int) bool {
	for k, v := range order {
		if k != v {
			return false
		}
	}
	return true
}
