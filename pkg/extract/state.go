package extract

// Per-utterance lifecycle: OPEN(no label) -> OPEN(label) -> CLOSED.
// CLOSED is terminal; the closed set below enforces that even for late
// duplicate deliveries.

type utteranceState struct {
	lastEmitted string
}

// closedSet remembers closed utterance ids with a FIFO eviction bound, so a
// long-lived session cannot grow state without limit. Eviction only forgets
// ids old enough that late duplicates are no longer plausible.
type closedSet struct {
	max   int
	ids   map[string]struct{}
	order []string
}

func newClosedSet(max int) *closedSet {
	if max <= 0 {
		max = 1024
	}
	return &closedSet{
		max: max,
		ids: make(map[string]struct{}, max),
	}
}

func (c *closedSet) Has(id string) bool {
	_, ok := c.ids[id]
	return ok
}

func (c *closedSet) Add(id string) {
	if _, ok := c.ids[id]; ok {
		return
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)
	for len(c.order) > c.max {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.ids, oldest)
	}
}

func (c *closedSet) Len() int { return len(c.ids) }

func (c *closedSet) Reset() {
	c.ids = make(map[string]struct{}, c.max)
	c.order = nil
}
