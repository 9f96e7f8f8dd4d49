// Package sizeoracle measures source size of a directory by delegating line
// classification to an external cloc-compatible program.
package sizeoracle

// SizeMetric is the line classification of one subtree. All counts are
// non-negative; the zero value stands for an absent or unmeasurable subtree.
type SizeMetric struct {
	Code    int `json:"code"    yaml:"code"`
	Comment int `json:"comment" yaml:"comment"`
	Blank   int `json:"blank"   yaml:"blank"`
}

// IsZero reports whether all counts are zero.
func (m SizeMetric) IsZero() bool {
	return m == SizeMetric{}
}

// Add returns the element-wise sum.
func (m SizeMetric) Add(other SizeMetric) SizeMetric {
	return SizeMetric{
		Code:    m.Code + other.Code,
		Comment: m.Comment + other.Comment,
		Blank:   m.Blank + other.Blank,
	}
}
