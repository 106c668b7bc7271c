package tether

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/akmonengine/tether/config"
	"github.com/akmonengine/tether/constraint"
	"github.com/akmonengine/tether/linalg"
)

var (
	ErrManagerExists = errors.New("tether: world already has a constraint manager")
	ErrUnknownHandle = errors.New("tether: unknown constraint handle")
)

// Stats describes the last frame solved by the manager
type Stats struct {
	Iterations  int
	Loops       int
	Error       float64
	Method      linalg.SolveMethod
	Rebuilds    int
	Escalations int
	Active      int
	Dimension   int
}

type slot struct {
	constraint constraint.Constraint
	generation uint32
	// position in the active list, -1 when inactive
	position int
}

type pairKey struct {
	c, other constraint.Handle
}

// Manager solves the active constraints of a world. Every frame it looks for
// the restriction values R such that J·ΔR = -C drives the stacked error C of
// all constraints to zero, J being dC/dR.
//
// Constraints live in an arena addressed by handles. The active list may hold
// tombstones while a pass is running; it is compacted, and offsets recounted,
// before the Jacobian is assembled again.
type Manager struct {
	logger   *slog.Logger
	events   *Events
	sink     ForceSink
	settings config.SolverConfig
	softness constraint.Softness

	slots    []slot
	free     []uint32
	active   []constraint.Constraint
	monitors []constraint.Monitor

	dim   int
	owner []int
	dirty bool
	stale bool
	age   int
	// pairs that share no dynamic body, their Jacobian block is zero
	zeroPairs map[pairKey]struct{}

	jacobian *linalg.Matrix
	block    *linalg.Matrix
	errors   *linalg.Vector
	rhs      *linalg.Vector
	delta    *linalg.Vector
	perturb  []float64
	probe    []float64
	// the last decomposition stopped at the SVD sweep cap
	svdFailing bool

	h       float64
	frame   uint64
	inFrame bool
	stats   Stats
}

// NewManager creates the constraint manager of w. A world has at most one.
func NewManager(w *World) (*Manager, error) {
	if w.manager != nil {
		return nil, ErrManagerExists
	}

	settings := w.config.Solver
	minMethod, err := linalg.ParseSolveMethod(settings.MinSolveMethod)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	softness, err := constraint.ParseSoftness(settings.VelocityTerms)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	m := &Manager{
		logger:    w.logger,
		events:    &w.Events,
		sink:      w.sink,
		settings:  settings,
		softness:  softness,
		zeroPairs: make(map[pairKey]struct{}),
		jacobian:  linalg.NewMatrix(0, 0),
		block:     linalg.NewMatrix(0, 0),
		errors:    linalg.NewVector(0),
		rhs:       linalg.NewVector(0),
		delta:     linalg.NewVector(0),
		stale:     true,
	}
	m.jacobian.SetMinSolveMethod(minMethod)
	w.manager = m

	return m, nil
}

// ========== REGISTRY ==========

func (m *Manager) lookup(h constraint.Handle) constraint.Constraint {
	if h.IsZero() || int(h.Index()) >= len(m.slots) {
		return nil
	}
	s := m.slots[h.Index()]
	if s.generation != h.Generation() {
		return nil
	}
	return s.constraint
}

// register gives c a slot unless it already has one
func (m *Manager) register(c constraint.Constraint) constraint.Handle {
	b := c.Base()
	if h := b.Handle(); m.lookup(h) == c {
		return h
	}

	var index uint32
	if n := len(m.free); n > 0 {
		index = m.free[n-1]
		m.free = m.free[:n-1]
	} else {
		index = uint32(len(m.slots))
		m.slots = append(m.slots, slot{})
	}
	s := &m.slots[index]
	s.generation++
	s.constraint = c
	s.position = -1

	h := constraint.MakeHandle(index, s.generation)
	b.SetHandle(h)
	b.SetLogger(m.logger)
	if b.Softness() == constraint.SoftAuto {
		b.SetSoftness(m.softness)
	}
	b.SetMaxOsc(m.settings.MaxOsc)

	return h
}

// Register stores c and initializes it from the current body state without
// activating it. On error the constraint stays registered but unusable.
func (m *Manager) Register(c constraint.Constraint) (constraint.Handle, error) {
	h := m.register(c)
	if err := c.Init(); err != nil {
		m.logger.Warn("invalid constraint", "constraint", c.Base().Name, "handle", h, "error", err)
		return h, err
	}
	return h, nil
}

// Add registers, initializes and activates c
func (m *Manager) Add(c constraint.Constraint) (constraint.Handle, error) {
	h, err := m.Register(c)
	if err != nil {
		return h, err
	}
	return h, m.Activate(c)
}

// Activate makes c part of the solved set. A constraint activated while a
// frame is being solved starts its frame immediately.
func (m *Manager) Activate(c constraint.Constraint) error {
	b := c.Base()
	h := m.register(c)
	if !b.Initialized() {
		if err := c.Init(); err != nil {
			m.logger.Warn("invalid constraint", "constraint", b.Name, "handle", h, "error", err)
			return err
		}
	}
	if err := b.MarkActive(); err != nil {
		return err
	}

	m.slots[h.Index()].position = len(m.active)
	m.active = append(m.active, c)
	m.dirty = true

	if m.inFrame {
		constraint.BeginFrame(c, m.h)
		constraint.FirstEstimate(c)
	}
	m.events.emit(ConstraintActivatedEvent{Handle: h, Constraint: c})

	return nil
}

// Deactivate takes c out of the solved set and withdraws its loads
func (m *Manager) Deactivate(c constraint.Constraint) {
	if m.deactivate(c, true) {
		m.events.emit(ConstraintDeactivatedEvent{Handle: c.Base().Handle(), Constraint: c})
	}
}

// deactivate tombstones c in the active list. It returns false when c was
// not active, so every transition is seen once.
func (m *Manager) deactivate(c constraint.Constraint, release bool) bool {
	b := c.Base()
	h := b.Handle()
	if m.lookup(h) != c || !b.Active() {
		return false
	}
	if release {
		constraint.Release(c)
	}
	if !b.MarkInactive() {
		return false
	}

	s := &m.slots[h.Index()]
	if s.position >= 0 && s.position < len(m.active) && m.active[s.position] == c {
		m.active[s.position] = nil
	}
	s.position = -1
	m.dirty = true

	return true
}

// Remove deactivates the constraint behind h and frees its slot
func (m *Manager) Remove(h constraint.Handle) error {
	c := m.lookup(h)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	m.Deactivate(c)
	m.release(h)
	return nil
}

func (m *Manager) release(h constraint.Handle) {
	s := &m.slots[h.Index()]
	if c := s.constraint; c != nil {
		c.Base().SetHandle(constraint.Handle{})
	}
	s.constraint = nil
	s.position = -1
	m.free = append(m.free, h.Index())
}

func (m *Manager) Get(h constraint.Handle) (constraint.Constraint, bool) {
	c := m.lookup(h)
	return c, c != nil
}

// AddMonitor registers a companion watched once per frame
func (m *Manager) AddMonitor(monitor constraint.Monitor) {
	m.monitors = append(m.monitors, monitor)
}

// Len returns the number of active constraints
func (m *Manager) Len() int {
	n := 0
	for _, c := range m.active {
		if c != nil {
			n++
		}
	}
	return n
}

// Dimension returns the total dimension of the active constraints
func (m *Manager) Dimension() int {
	n := 0
	for _, c := range m.active {
		if c != nil {
			n += c.Base().Dimension()
		}
	}
	return n
}

// Active returns the active constraints in solve order
func (m *Manager) Active() []constraint.Constraint {
	out := make([]constraint.Constraint, 0, len(m.active))
	for _, c := range m.active {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Frame counts the frames solved so far
func (m *Manager) Frame() uint64 {
	return m.frame
}

func (m *Manager) Stats() Stats {
	return m.stats
}

// Jacobian is the matrix assembled by the last rebuild
func (m *Manager) Jacobian() *linalg.Matrix {
	return m.jacobian
}

// ========== FRAME ==========

// Step solves the active constraints for a frame of length h. The bodies
// must have begun the frame. detect, when not nil, runs the collision
// detection and returns how many contacts it created; it is called once
// before the solve and again after each solve while contacts keep appearing,
// up to MaxCollisionLoops times.
func (m *Manager) Step(h float64, detect func() int) Stats {
	m.stats = Stats{}
	m.h = h
	m.frame++
	m.age++

	if m.dirty {
		m.recount()
	}
	for _, c := range m.active {
		constraint.BeginFrame(c, h)
	}
	for _, c := range m.active {
		constraint.FirstEstimate(c)
	}
	m.checkRestrictions()

	m.inFrame = true
	for _, monitor := range m.monitors {
		if err := monitor.Watch(m); err != nil {
			m.logger.Warn("monitor could not activate its constraint", "error", err)
		}
	}
	if detect != nil {
		detect()
	}

	m.solve()
	for detect != nil && m.stats.Loops < m.settings.MaxCollisionLoops {
		if detect() == 0 {
			break
		}
		m.stats.Loops++
		m.solve()
	}
	m.inFrame = false

	m.finish()
	m.logger.Debug("frame solved",
		"iterations", m.stats.Iterations,
		"error", m.stats.Error,
		"constraints", m.stats.Active,
		"dimension", m.stats.Dimension,
	)

	return m.stats
}

// solve runs the correction loop until the error norm drops below MaxError
// or MaxIter corrections were applied
func (m *Manager) solve() {
	for iter := 0; ; iter++ {
		if m.dirty {
			m.recount()
		}
		if m.dim == 0 {
			m.stats.Error = 0
			return
		}

		norm := m.assembleError()
		m.stats.Error = norm
		if !m.errors.IsFinite() {
			m.logger.Warn("non finite constraint error", "dimension", m.dim)
			return
		}
		if norm <= m.settings.MaxError || iter >= m.settings.MaxIter {
			return
		}

		if m.stale || m.settings.NrSkip == 0 || m.age > m.settings.NrSkip {
			m.buildJacobian()
		}
		m.solveJacobian()
		m.applyChanges()
		m.stats.Iterations++
	}
}

// checkRestrictions breaks the constraints whose first estimate already
// lies outside their limits
func (m *Manager) checkRestrictions() {
	for _, c := range m.active {
		if c == nil || !c.Base().Active() {
			continue
		}
		if !constraint.CheckRestrictions(c) {
			m.perturb = resize(m.perturb, c.Base().Dimension())
			clear(m.perturb)
			m.breakConstraint(c, m.perturb)
		}
	}
}

// recount compacts the active list, optionally reorders it, and assigns
// each constraint its offset in the stacked system
func (m *Manager) recount() {
	n := 0
	for _, c := range m.active {
		if c != nil {
			m.active[n] = c
			n++
		}
	}
	clear(m.active[n:])
	m.active = m.active[:n]

	if m.settings.Reorder && n > 2 {
		m.reorder()
	}

	m.owner = m.owner[:0]
	offset := 0
	for i, c := range m.active {
		b := c.Base()
		m.slots[b.Handle().Index()].position = i
		b.SetOffset(offset)
		offset += b.Dimension()
		for range b.Dimension() {
			m.owner = append(m.owner, i)
		}
	}
	m.dim = offset

	clear(m.zeroPairs)
	m.dirty = false
	m.stale = true
}

// reorder sorts the active list along a reverse Cuthill-McKee ordering of
// the graph linking constraints that share a dynamic body
func (m *Manager) reorder() {
	n := len(m.active)
	adjacency := make([][]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if constraint.Shares(m.active[i], m.active[j]) {
				adjacency[i] = append(adjacency[i], j)
				adjacency[j] = append(adjacency[j], i)
			}
		}
	}

	order := reverseCuthillMcKee(adjacency)
	m.logger.Debug("constraints reordered", "count", n, "bandwidth", bandwidth(adjacency, order))
	reordered := make([]constraint.Constraint, n)
	for k, i := range order {
		reordered[k] = m.active[i]
	}
	copy(m.active, reordered)
}

func (m *Manager) assembleError() float64 {
	m.errors.Resize(m.dim)
	raw := m.errors.Raw()
	for _, c := range m.active {
		b := c.Base()
		c.Error(raw[b.Offset() : b.Offset()+b.Dimension()])
	}
	return m.errors.Norm()
}

// coupled reports whether the error of other may depend on the value of c
func (m *Manager) coupled(c, other constraint.Constraint) bool {
	if c == other {
		return true
	}
	key := pairKey{c: c.Base().Handle(), other: other.Base().Handle()}
	if _, ok := m.zeroPairs[key]; ok {
		return false
	}
	if !constraint.Shares(c, other) {
		m.zeroPairs[key] = struct{}{}
		return false
	}
	return true
}

func (m *Manager) buildJacobian() {
	m.jacobian.Resize(m.dim, m.dim)
	if m.settings.AnalyticalJacobian {
		m.buildAnalytical()
	} else {
		m.buildEmpirical()
	}

	m.jacobian.AnalyseStructure(func(i, j int) bool {
		return m.coupled(m.active[m.owner[j]], m.active[m.owner[i]])
	})
	m.stale = false
	m.age = 0
	m.stats.Rebuilds++
}

// buildAnalytical writes, for every coupled pair, the block dC_other/dR_c
// at the rows of other and the columns of c
func (m *Manager) buildAnalytical() {
	for _, c := range m.active {
		col := c.Base().Offset()
		for _, other := range m.active {
			if !m.coupled(c, other) {
				continue
			}
			if constraint.DCdRSub(c, other, m.block) {
				m.jacobian.SetSubMatrix(other.Base().Offset(), col, m.block)
			}
		}
	}
}

// buildEmpirical probes every restriction dimension with a small load and
// measures how the errors move. The bodies are restored after each probe.
func (m *Manager) buildEmpirical() {
	for _, c := range m.active {
		cb := c.Base()
		m.perturb = resize(m.perturb, cb.Dimension())

		for k := range cb.Dimension() {
			step := constraint.ProbeStep(c, k)
			clear(m.perturb)
			m.perturb[k] = step

			constraint.BeginTest(c)
			constraint.ApplyRestrictions(c, m.perturb)
			for _, other := range m.active {
				if !m.coupled(c, other) {
					continue
				}
				ob := other.Base()
				m.probe = resize(m.probe, ob.Dimension())
				other.Error(m.probe)
				for i, v := range m.probe {
					row := ob.Offset() + i
					m.jacobian.Set(row, cb.Offset()+k, (v-m.errors.At(row))/step)
				}
			}
			constraint.EndTest(c)
		}
	}
}

// solveJacobian computes delta from J·delta = -C
func (m *Manager) solveJacobian() {
	m.rhs.Resize(m.dim)
	for i := range m.dim {
		m.rhs.Set(i, -m.errors.At(i))
	}

	from := m.jacobian.SolveMethod()
	if m.jacobian.Solve(m.rhs, m.delta) {
		to := m.jacobian.SolveMethod()
		m.stats.Escalations++
		m.logger.Warn("singular constraint matrix, solve method changed",
			"from", from,
			"to", to,
			"size", m.dim,
			"rank_deficiency", m.jacobian.RankDeficiency(),
		)
		m.events.emit(SolveMethodChangedEvent{From: from, To: to, Size: m.dim})
	}
	converged := m.jacobian.Converged()
	if !converged && !m.svdFailing {
		m.logger.Warn("svd did not converge",
			"size", m.dim,
			"sweeps", m.jacobian.SVDIterations(),
			"rank_deficiency", m.jacobian.RankDeficiency(),
		)
	}
	m.svdFailing = !converged
	m.stats.Method = m.jacobian.SolveMethod()
}

// applyChanges hands every active constraint its slice of delta. A
// constraint whose value would cross a limit deactivates instead; the list
// is only tombstoned, so the pass carries on over the others.
func (m *Manager) applyChanges() {
	raw := m.delta.Raw()
	for _, c := range m.active {
		if c == nil {
			continue
		}
		b := c.Base()
		if !b.Active() {
			continue
		}
		d := raw[b.Offset() : b.Offset()+b.Dimension()]
		if !constraint.TestRestrictionChanges(c, d) {
			m.breakConstraint(c, d)
			continue
		}
		constraint.ApplyRestrictionChanges(c, d)
	}
}

func (m *Manager) breakConstraint(c constraint.Constraint, d []float64) {
	b := c.Base()
	dim := b.Violated()
	value := b.Value()[dim] + d[dim]
	limit := b.MaxForce(dim)
	if value < b.MinForce(dim) {
		limit = b.MinForce(dim)
	}
	h := b.Handle()

	if !m.deactivate(c, true) {
		return
	}
	if b.Disposable() {
		m.logger.Debug("contact released", "constraint", b.Name, "handle", h, "value", value)
	} else if b.Monitor() != nil {
		m.logger.Debug("constraint handed back to its monitor", "constraint", b.Name, "handle", h, "value", value)
	} else {
		m.logger.Warn("excess reaction force, constraint deactivated",
			"constraint", b.Name,
			"handle", h,
			"dim", dim,
			"value", value,
			"limit", limit,
		)
	}
	m.events.emit(ConstraintBrokenEvent{Handle: h, Constraint: c, Dim: dim, Value: value, Limit: limit})

	if monitor := b.Monitor(); monitor != nil {
		monitor.Handoff(c)
	}
}

// finish reports the applied values and drops the disposable constraints
func (m *Manager) finish() {
	if m.dirty {
		m.recount()
	}
	m.stats.Active = len(m.active)
	m.stats.Dimension = m.dim
	if m.stats.Iterations == 0 {
		m.stats.Method = m.jacobian.SolveMethod()
	}

	for _, c := range m.active {
		constraint.PostProcess(c)
		m.sink.ReportConstraint(c)
	}

	for i := range m.slots {
		s := &m.slots[i]
		if s.constraint == nil || !s.constraint.Base().Disposable() {
			continue
		}
		h := s.constraint.Base().Handle()
		m.deactivate(s.constraint, false)
		m.release(h)
	}
}

func resize(s []float64, n int) []float64 {
	if cap(s) >= n {
		return s[:n]
	}
	return make([]float64, n)
}
