package main

// Verdict classifies one poll cycle.
type Verdict struct {
	Available bool
	Matched   []TicketClass
	Inspected int
}

// PollCycle is the immutable record of one scheduler iteration.
type PollCycle struct {
	Attempt int64
	Tickets []TicketClass
	Pages   int
	Verdict Verdict
}

// Evaluate reports available iff at least one entry is exactly AVAILABLE.
// Duplicate ids across pages are counted independently.
func Evaluate(tickets []TicketClass) Verdict {
	matched := availableIn(tickets)
	return Verdict{
		Available: len(matched) > 0,
		Matched:   matched,
		Inspected: len(tickets),
	}
}

// EvaluateCollection uses the early-exit match when the aggregator
// stopped on one, otherwise the full merged set.
func EvaluateCollection(c *Collection) Verdict {
	if c == nil {
		return Verdict{}
	}
	if len(c.EarlyMatch) > 0 {
		return Verdict{
			Available: true,
			Matched:   c.EarlyMatch,
			Inspected: len(c.Tickets),
		}
	}
	return Evaluate(c.Tickets)
}
