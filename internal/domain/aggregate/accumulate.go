package aggregate

// Totals sums values per startup and remembers first-seen order.
type Totals struct {
	order  []string
	sums   map[string]float64
	counts map[string]int
}

// NewTotals returns an empty Totals.
func NewTotals() *Totals {
	return &Totals{sums: map[string]float64{}, counts: map[string]int{}}
}

// Add accumulates v for startupID and increments its record count.
func (t *Totals) Add(startupID string, v float64) {
	if _, ok := t.sums[startupID]; !ok {
		t.order = append(t.order, startupID)
	}
	t.sums[startupID] += v
	t.counts[startupID]++
}

// Keys returns startup ids in first-seen order.
func (t *Totals) Keys() []string {
	return append([]string(nil), t.order...)
}

// Total returns the sum for startupID.
func (t *Totals) Total(startupID string) float64 { return t.sums[startupID] }

// Count returns how many records contributed to startupID.
func (t *Totals) Count(startupID string) int { return t.counts[startupID] }

// Len returns the number of distinct startups.
func (t *Totals) Len() int { return len(t.order) }

// Skip is a record left out of the totals.
type Skip struct {
	Kind Kind
	Path string
	Err  error
}

// Result is the output of one aggregation.
type Result struct {
	Investments *Totals
	Ratings     *Totals
	Names       map[string]string
	Skipped     []Skip
}

// Accumulate parses every record and sums the valid ones. Malformed
// records are reported in Skipped and never fail the call. startups maps
// startup id to the raw startup document.
func Accumulate(investments, ratings []Record, startups map[string]map[string]any) Result {
	res := Result{
		Investments: NewTotals(),
		Ratings:     NewTotals(),
		Names:       make(map[string]string, len(startups)),
	}
	for _, r := range investments {
		c, err := ParseInvestment(r)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Kind: KindInvestment, Path: r.Path, Err: err})
			continue
		}
		res.Investments.Add(c.StartupID, c.Value)
	}
	for _, r := range ratings {
		c, err := ParseRating(r)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{Kind: KindRating, Path: r.Path, Err: err})
			continue
		}
		res.Ratings.Add(c.StartupID, c.Value)
	}
	for id, data := range startups {
		if name, ok := ParseStartupName(data); ok {
			res.Names[id] = name
		}
	}
	return res
}
