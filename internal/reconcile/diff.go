package reconcile

// Edit is the minimal suffix edit turning one delivered text into another:
// delete DeleteCount characters off the end, then append InsertSuffix.
type Edit struct {
	DeleteCount  int
	InsertSuffix string
}

// Diff computes the edit between the previously delivered text and the new
// target. Comparison is character-wise (decoded runes, not bytes) so the
// result stays correct for multi-byte text. Pure and deterministic.
func Diff(previous, target string) Edit {
	prev := []rune(previous)
	next := []rune(target)

	p := 0
	for p < len(prev) && p < len(next) && prev[p] == next[p] {
		p++
	}

	return Edit{
		DeleteCount:  len(prev) - p,
		InsertSuffix: string(next[p:]),
	}
}
