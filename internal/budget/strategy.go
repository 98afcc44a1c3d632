package budget

type Strategy string

const (
	SinglePass   Strategy = "single-pass"
	Sequential   Strategy = "sequential"
	Hierarchical Strategy = "hierarchical"

	// Partitioned runs independent chunks that share one background
	// prefix. Assignment runs record it; SelectStrategy never returns it.
	Partitioned Strategy = "partitioned"
)

// SelectStrategy picks how a workload of total units is assembled.
// It depends on nothing but its arguments.
func SelectStrategy(total int, cfg Config) Strategy {
	switch {
	case total <= cfg.Budget().SinglePassRoom():
		return SinglePass
	case total <= cfg.SequentialCeiling:
		return Sequential
	default:
		return Hierarchical
	}
}

// CarriesSummary reports whether chunks of s depend on the output of
// the previous chunk and must therefore run in order.
func (s Strategy) CarriesSummary() bool {
	return s == Sequential || s == Hierarchical
}
