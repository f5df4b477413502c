package coreg

import "fmt"

// DefaultMaxIDAttempts bounds the search for an unused identifier variant.
const DefaultMaxIDAttempts = 1000

// IDAllocator hands out laboratory identifiers that are not yet in use.
type IDAllocator interface {
	// NextID returns the next unused numbered variant of the base
	// identifier, e.g. "sample_xrd" -> "sample_xrd_2".
	NextID(base string) (string, error)
}

// ExistsFunc reports whether a candidate identifier is already taken,
// typically backed by the lab's record index.
type ExistsFunc func(id string) bool

// SequentialAllocator numbers candidates base, base_2, base_3, ... until the
// existence check clears, giving up after MaxAttempts instead of looping
// silently.
type SequentialAllocator struct {
	Exists      ExistsFunc
	MaxAttempts int // 0 means DefaultMaxIDAttempts
}

// NextID implements IDAllocator
func (a *SequentialAllocator) NextID(base string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("empty base identifier")
	}
	max := a.MaxAttempts
	if max <= 0 {
		max = DefaultMaxIDAttempts
	}
	if a.Exists == nil || !a.Exists(base) {
		return base, nil
	}
	for n := 2; n <= max; n++ {
		candidate := fmt.Sprintf("%s_%d", base, n)
		if !a.Exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no unused variant of %q after %d attempts", base, max)
}
