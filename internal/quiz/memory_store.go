package quiz

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type edgeKey struct{ parentVID, childVID int64 }

type responseKey struct {
	attemptID   int64
	questionVID int64
}

type memState struct {
	seq       int64
	quizzes   map[VersionRef]Quiz
	questions map[VersionRef]QuestionRecord
	props     map[VersionRef]int
	edges     map[edgeKey]Edge
	attempts  map[int64]Attempt
	responses map[responseKey]ResponseRecord
	events    []syncx.Event
}

func newMemState() *memState {
	return &memState{
		quizzes:   map[VersionRef]Quiz{},
		questions: map[VersionRef]QuestionRecord{},
		props:     map[VersionRef]int{},
		edges:     map[edgeKey]Edge{},
		attempts:  map[int64]Attempt{},
		responses: map[responseKey]ResponseRecord{},
	}
}

// clone copies every map; values are plain structs that are replaced, never
// mutated in place, so a shallow copy per map is enough.
func (s *memState) clone() *memState {
	c := &memState{
		seq:       s.seq,
		quizzes:   make(map[VersionRef]Quiz, len(s.quizzes)),
		questions: make(map[VersionRef]QuestionRecord, len(s.questions)),
		props:     make(map[VersionRef]int, len(s.props)),
		edges:     make(map[edgeKey]Edge, len(s.edges)),
		attempts:  make(map[int64]Attempt, len(s.attempts)),
		responses: make(map[responseKey]ResponseRecord, len(s.responses)),
		events:    append([]syncx.Event(nil), s.events...),
	}
	for k, v := range s.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range s.questions {
		c.questions[k] = v
	}
	for k, v := range s.props {
		c.props[k] = v
	}
	for k, v := range s.edges {
		c.edges[k] = v
	}
	for k, v := range s.attempts {
		c.attempts[k] = v
	}
	for k, v := range s.responses {
		c.responses[k] = v
	}
	return c
}

// MemoryStore keeps everything in maps guarded by one lock. A transaction
// works on a private clone that replaces the shared state on commit.
type MemoryStore struct {
	mu   *sync.RWMutex
	st   *memState
	inTx bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.RWMutex{}, st: newMemState()}
}

func (m *MemoryStore) lock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.Lock()
	return m.mu.Unlock
}

func (m *MemoryStore) rlock() func() {
	if m.inTx {
		return func() {}
	}
	m.mu.RLock()
	return m.mu.RUnlock
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &MemoryStore{mu: m.mu, st: m.st.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

// Events returns a copy of the appended event log.
func (m *MemoryStore) Events() []syncx.Event {
	defer m.rlock()()
	return append([]syncx.Event(nil), m.st.events...)
}

func (m *MemoryStore) NextID(_ context.Context) (int64, error) {
	defer m.lock()()
	m.st.seq++
	return m.st.seq, nil
}

func (m *MemoryStore) CreateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	if q.Ref.IsZero() {
		nid, _ := m.NextID(ctx)
		vid, _ := m.NextID(ctx)
		q.Ref = VersionRef{NID: nid, VID: vid}
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	return q, m.InsertQuizVersion(ctx, q)
}

func (m *MemoryStore) InsertQuizVersion(_ context.Context, q Quiz) error {
	defer m.lock()()
	if _, ok := m.st.quizzes[q.Ref]; ok {
		return fmt.Errorf("quiz %s already exists", q.Ref)
	}
	m.st.quizzes[q.Ref] = q
	return nil
}

func (m *MemoryStore) GetQuiz(_ context.Context, ref VersionRef) (Quiz, error) {
	defer m.rlock()()
	q, ok := m.st.quizzes[ref]
	if !ok {
		return Quiz{}, fmt.Errorf("quiz %s: %w", ref, ErrNotFound)
	}
	return q, nil
}

func (m *MemoryStore) CurrentQuiz(_ context.Context, nid int64) (Quiz, error) {
	defer m.rlock()()
	var cur Quiz
	found := false
	for ref, q := range m.st.quizzes {
		if ref.NID == nid && (!found || ref.VID > cur.Ref.VID) {
			cur, found = q, true
		}
	}
	if !found {
		return Quiz{}, fmt.Errorf("quiz %d: %w", nid, ErrNotFound)
	}
	return cur, nil
}

func (m *MemoryStore) ListQuizzes(_ context.Context) ([]Quiz, error) {
	defer m.rlock()()
	latest := map[int64]Quiz{}
	for ref, q := range m.st.quizzes {
		if cur, ok := latest[ref.NID]; !ok || ref.VID > cur.Ref.VID {
			latest[ref.NID] = q
		}
	}
	out := make([]Quiz, 0, len(latest))
	for _, q := range latest {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.NID < out[j].Ref.NID })
	return out, nil
}

func (m *MemoryStore) SetQuizMaxScore(_ context.Context, ref VersionRef, score int) error {
	defer m.lock()()
	q, ok := m.st.quizzes[ref]
	if !ok {
		return fmt.Errorf("quiz %s: %w", ref, ErrNotFound)
	}
	q.MaxScore = score
	m.st.quizzes[ref] = q
	return nil
}

func (m *MemoryStore) PutQuestion(_ context.Context, rec QuestionRecord) error {
	defer m.lock()()
	m.st.questions[rec.Ref] = rec
	return nil
}

func (m *MemoryStore) GetQuestion(_ context.Context, ref VersionRef) (QuestionRecord, error) {
	defer m.rlock()()
	rec, ok := m.st.questions[ref]
	if !ok {
		return QuestionRecord{}, fmt.Errorf("question %s: %w", ref, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) CurrentQuestion(_ context.Context, nid int64) (QuestionRecord, error) {
	defer m.rlock()()
	var cur QuestionRecord
	found := false
	for ref, rec := range m.st.questions {
		if ref.NID == nid && (!found || ref.VID > cur.Ref.VID) {
			cur, found = rec, true
		}
	}
	if !found {
		return QuestionRecord{}, fmt.Errorf("question %d: %w", nid, ErrNotFound)
	}
	return cur, nil
}

func (m *MemoryStore) QuestionVersions(_ context.Context, nid int64) ([]VersionRef, error) {
	defer m.rlock()()
	var out []VersionRef
	for ref := range m.st.questions {
		if ref.NID == nid {
			out = append(out, ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VID < out[j].VID })
	return out, nil
}

func (m *MemoryStore) DeleteQuestion(_ context.Context, ref VersionRef) error {
	defer m.lock()()
	delete(m.st.questions, ref)
	return nil
}

func (m *MemoryStore) InsertProperties(_ context.Context, ref VersionRef, maxScore int) error {
	defer m.lock()()
	if _, ok := m.st.props[ref]; ok {
		return fmt.Errorf("properties for %s already exist", ref)
	}
	m.st.props[ref] = maxScore
	return nil
}

func (m *MemoryStore) UpdateProperties(_ context.Context, ref VersionRef, maxScore int) error {
	defer m.lock()()
	if _, ok := m.st.props[ref]; !ok {
		return fmt.Errorf("properties for %s: %w", ref, ErrNotFound)
	}
	m.st.props[ref] = maxScore
	return nil
}

func (m *MemoryStore) Properties(_ context.Context, ref VersionRef) (int, bool, error) {
	defer m.rlock()()
	v, ok := m.st.props[ref]
	return v, ok, nil
}

func (m *MemoryStore) DeleteProperties(_ context.Context, ref VersionRef) error {
	defer m.lock()()
	delete(m.st.props, ref)
	return nil
}

func (m *MemoryStore) EdgesForParent(_ context.Context, parent VersionRef) ([]Edge, error) {
	defer m.rlock()()
	return m.collectEdges(func(e Edge) bool { return e.Parent == parent }), nil
}

func (m *MemoryStore) EdgesForChild(_ context.Context, child VersionRef) ([]Edge, error) {
	defer m.rlock()()
	return m.collectEdges(func(e Edge) bool { return e.Child == child }), nil
}

func (m *MemoryStore) EdgesForQuestion(_ context.Context, nid int64) ([]Edge, error) {
	defer m.rlock()()
	return m.collectEdges(func(e Edge) bool { return e.Child.NID == nid }), nil
}

func (m *MemoryStore) collectEdges(keep func(Edge) bool) []Edge {
	var out []Edge
	for _, e := range m.st.edges {
		if keep(e) {
			out = append(out, e)
		}
	}
	sortEdges(out)
	return out
}

func sortEdges(edges []Edge) {
	sort.Slice(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Parent.VID != b.Parent.VID {
			return a.Parent.VID < b.Parent.VID
		}
		if a.Weight != b.Weight {
			return a.Weight < b.Weight
		}
		return a.Child.VID < b.Child.VID
	})
}

// LockQuizzes is a no-op: InTx already holds the store lock for the whole
// transaction.
func (m *MemoryStore) LockQuizzes(context.Context, []int64) error { return nil }

func (m *MemoryStore) InsertEdge(_ context.Context, e Edge) error {
	defer m.lock()()
	k := edgeKey{e.Parent.VID, e.Child.VID}
	if _, ok := m.st.edges[k]; ok {
		return fmt.Errorf("edge %s -> %s already exists", e.Parent, e.Child)
	}
	m.st.edges[k] = e
	return nil
}

func (m *MemoryStore) DeleteEdge(_ context.Context, parent, child VersionRef) (bool, error) {
	defer m.lock()()
	k := edgeKey{parent.VID, child.VID}
	if _, ok := m.st.edges[k]; !ok {
		return false, nil
	}
	delete(m.st.edges, k)
	return true, nil
}

func (m *MemoryStore) SetEdgeMaxScore(_ context.Context, parent, child VersionRef, maxScore int) error {
	defer m.lock()()
	k := edgeKey{parent.VID, child.VID}
	e, ok := m.st.edges[k]
	if !ok {
		return fmt.Errorf("edge %s -> %s: %w", parent, child, ErrNotFound)
	}
	e.MaxScore = maxScore
	m.st.edges[k] = e
	return nil
}

func (m *MemoryStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	id, _ := m.NextID(ctx)
	defer m.lock()()
	a.ID = id
	if a.StartedAt == 0 {
		a.StartedAt = time.Now().Unix()
	}
	m.st.attempts[id] = a
	return a, nil
}

func (m *MemoryStore) GetAttempt(_ context.Context, id int64) (Attempt, error) {
	defer m.rlock()()
	a, ok := m.st.attempts[id]
	if !ok {
		return Attempt{}, fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	return a, nil
}

func (m *MemoryStore) FinishAttempt(_ context.Context, id int64, score int, at int64) error {
	defer m.lock()()
	a, ok := m.st.attempts[id]
	if !ok {
		return fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	a.Score, a.FinishedAt = score, at
	m.st.attempts[id] = a
	return nil
}

func (m *MemoryStore) QuizHasResults(_ context.Context, quiz VersionRef) (bool, error) {
	defer m.rlock()()
	for _, a := range m.st.attempts {
		if a.Quiz == quiz {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) QuestionHasAnswers(_ context.Context, question VersionRef) (bool, error) {
	defer m.rlock()()
	for k := range m.st.responses {
		if k.questionVID == question.VID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) QuestionInAnsweredQuiz(_ context.Context, question VersionRef) (bool, error) {
	defer m.rlock()()
	for _, e := range m.st.edges {
		if e.Child != question {
			continue
		}
		for _, a := range m.st.attempts {
			if a.Quiz.VID == e.Parent.VID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *MemoryStore) SaveResponse(_ context.Context, rec ResponseRecord) error {
	defer m.lock()()
	if _, ok := m.st.attempts[rec.AttemptID]; !ok {
		return fmt.Errorf("attempt %d: %w", rec.AttemptID, ErrNotFound)
	}
	m.st.responses[responseKey{rec.AttemptID, rec.Question.VID}] = rec
	return nil
}

func (m *MemoryStore) GetResponse(_ context.Context, attemptID int64, question VersionRef) (ResponseRecord, error) {
	defer m.rlock()()
	rec, ok := m.st.responses[responseKey{attemptID, question.VID}]
	if !ok {
		return ResponseRecord{}, fmt.Errorf("response %d/%s: %w", attemptID, question, ErrNotFound)
	}
	return rec, nil
}

func (m *MemoryStore) AttemptResponses(_ context.Context, attemptID int64) ([]ResponseRecord, error) {
	defer m.rlock()()
	var out []ResponseRecord
	for k, rec := range m.st.responses {
		if k.attemptID == attemptID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Question.VID < out[j].Question.VID })
	return out, nil
}

func (m *MemoryStore) DeleteResponse(_ context.Context, attemptID int64, question VersionRef) error {
	defer m.lock()()
	delete(m.st.responses, responseKey{attemptID, question.VID})
	return nil
}

func (m *MemoryStore) DeleteQuestionResponses(_ context.Context, question VersionRef) error {
	defer m.lock()()
	for k := range m.st.responses {
		if k.questionVID == question.VID {
			delete(m.st.responses, k)
		}
	}
	return nil
}

func (m *MemoryStore) AppendEvent(_ context.Context, e syncx.Event) error {
	defer m.lock()()
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	e.Offset = int64(len(m.st.events) + 1)
	m.st.events = append(m.st.events, e)
	return nil
}
