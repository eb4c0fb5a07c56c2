package circuit

// Window is a half-open range [Start, End) of circuit indices dispatched together.
type Window struct {
	Index int
	Start int
	End   int
}

// Len returns the number of circuits in the window.
func (w Window) Len() int {
	return w.End - w.Start
}

// Windows splits n items into consecutive windows of at most size items.
// It returns ceil(n/size) windows; size < 1 is treated as 1.
func Windows(n, size int) []Window {
	if n <= 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	windows := make([]Window, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		windows = append(windows, Window{Index: len(windows), Start: start, End: end})
	}
	return windows
}
