package boundary

// Memo pairs one frozen Context with one Mode and computes the boundary at
// most once. It is not safe for concurrent use; distinct Memos are
// independent.
type Memo struct {
	ctx  Context
	mode Mode
	calc Calculator

	done  bool
	value *Value
	err   error
}

// NewMemo snapshots ctx so later changes to the caller's samples do not
// leak into the cached result.
func NewMemo(ctx Context, mode Mode, calc Calculator) *Memo {
	return &Memo{ctx: ctx.clone(), mode: mode, calc: calc}
}

func (m *Memo) Mode() Mode { return m.mode }

func (m *Memo) Context() Context { return m.ctx.clone() }

// Value computes on first call and returns the cached outcome afterwards,
// including a cached error or a cached absence.
func (m *Memo) Value() (*Value, error) {
	if !m.done {
		m.value, m.err = m.calc.Compute(m.ctx, m.mode)
		m.done = true
	}
	return m.value, m.err
}
