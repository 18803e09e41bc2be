package ocr

// Candidates is an insertion-ordered set of digit strings.
type Candidates struct {
	order []string
	seen  map[string]struct{}
}

func newCandidates() *Candidates {
	return &Candidates{seen: make(map[string]struct{})}
}

func (c *Candidates) add(s string) {
	if _, ok := c.seen[s]; ok {
		return
	}
	c.seen[s] = struct{}{}
	c.order = append(c.order, s)
}

// Extract adds every run of 8-20 digits in text, plus the whole-text digit
// concatenation when it is at least 8 long.
func (c *Candidates) Extract(text string) {
	if text == "" {
		return
	}
	for _, m := range digitRuns.FindAllString(text, -1) {
		c.add(m)
	}
	if all := nonDigit.ReplaceAllString(text, ""); len(all) >= 8 {
		c.add(all)
	}
}

// Contains reports exact membership.
func (c *Candidates) Contains(s string) bool {
	_, ok := c.seen[s]
	return ok
}

// Longest returns the longest candidate, the first one on ties.
func (c *Candidates) Longest() string {
	best := ""
	for _, s := range c.order {
		if len(s) > len(best) {
			best = s
		}
	}
	return best
}

// List returns the candidates in insertion order.
func (c *Candidates) List() []string {
	return append([]string(nil), c.order...)
}

// HammingWindow slides a window of len(target) over digits and returns the
// smallest number of mismatched positions. ok is false when no window fits.
func HammingWindow(digits, target string) (best int, ok bool) {
	digits = nonDigit.ReplaceAllString(digits, "")
	target = nonDigit.ReplaceAllString(target, "")
	n := len(target)
	if n == 0 || len(digits) < n {
		return 0, false
	}
	best = n + 1
	for i := 0; i+n <= len(digits); i++ {
		d := 0
		for j := 0; j < n && d < best; j++ {
			if digits[i+j] != target[j] {
				d++
			}
		}
		if d < best {
			best = d
		}
		if best == 0 {
			break
		}
	}
	return best, true
}
