package domain

import "fmt"

// Resource is the result of size discovery. TotalLength is always > 0.
type Resource struct {
	Endpoint    string
	TotalLength uint32
}

// Window is a half-open byte range [Start, Start+Length) of the resource.
type Window struct {
	Index  int
	Start  int64
	Length int64
}

// End returns the exclusive upper bound of the window.
func (w Window) End() int64 { return w.Start + w.Length }

func (w Window) String() string {
	return fmt.Sprintf("%d-%d", w.Start, w.End())
}
