package journal

// Memory keeps the ledger in slices. It backs tests and short backtests
// where persistence is not needed.
type Memory struct {
	steps     []StepRecord
	positions []PositionRecord
	results   []ResultRecord
	runs      []RunRecord
	closed    bool
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) RecordStep(r StepRecord) error {
	m.steps = append(m.steps, r)
	return nil
}

func (m *Memory) RecordPosition(r PositionRecord) error {
	m.positions = append(m.positions, r)
	return nil
}

func (m *Memory) RecordResult(r ResultRecord) error {
	m.results = append(m.results, r)
	return nil
}

func (m *Memory) RecordRun(r RunRecord) error {
	m.runs = append(m.runs, r)
	return nil
}

func (m *Memory) Close() error {
	m.closed = true
	return nil
}

// Accessors return the recorded slices; callers must treat them as
// read-only.

func (m *Memory) Steps() []StepRecord         { return m.steps }
func (m *Memory) Positions() []PositionRecord { return m.positions }
func (m *Memory) Results() []ResultRecord     { return m.results }
func (m *Memory) Runs() []RunRecord           { return m.runs }
