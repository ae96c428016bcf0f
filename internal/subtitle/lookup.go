package subtitle

// At returns the first line whose interval contains t, along with its index.
// Lines are expected in start order; the scan stops once a line starts after t.
func At(lines []Line, t float64) (Line, int, bool) {
	for i, line := range lines {
		if line.Start > t {
			break
		}
		if line.Covers(t) {
			return line, i, true
		}
	}
	return Line{}, -1, false
}
