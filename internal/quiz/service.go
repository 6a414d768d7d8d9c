package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type Service struct {
	store      Store
	types      *Registry
	versioner  Versioner
	auth       Authorizer
	reconciler *Reconciler
	access     []AnswersAccessFunc
	observers  []Observer
	log        *zap.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithAuthorizer(a Authorizer) Option { return func(s *Service) { s.auth = a } }
func WithVersioner(v Versioner) Option   { return func(s *Service) { s.versioner = v } }
func WithLogger(l *zap.Logger) Option    { return func(s *Service) { s.log = l } }
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observers = append(s.observers, o) }
}
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAnswersAccess registers extra "may view the correct answer" checks.
func WithAnswersAccess(fns ...AnswersAccessFunc) Option {
	return func(s *Service) { s.access = append(s.access, fns...) }
}

func NewService(store Store, types *Registry, opts ...Option) *Service {
	s := &Service{
		store:     store,
		types:     types,
		versioner: StoreVersioner{},
		auth:      AllowAll{},
		log:       zap.NewNop(),
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.reconciler = NewReconciler(s.versioner, s.auth, s.log.Named("reconcile"))
	return s
}

func (s *Service) Types() *Registry { return s.types }

// RegisterAnswersAccess adds an extension point after construction.
func (s *Service) RegisterAnswersAccess(fn AnswersAccessFunc) { s.access = append(s.access, fn) }

// ---- questions ----

// NewQuestion decodes a submitted type-specific definition.
func (s *Service) NewQuestion(typ string, data json.RawMessage) (*Question, error) {
	t, ok := s.types.Lookup(typ)
	if !ok {
		return nil, fmt.Errorf("%q: %w", typ, ErrUnknownType)
	}
	def, err := t.DecodeDefinition(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s definition: %w: %w", typ, ErrInvalid, err)
	}
	return &Question{Type: typ, Definition: def, MaxScore: def.MaximumScore()}, nil
}

func (s *Service) LoadQuestion(ctx context.Context, ref VersionRef) (*Question, error) {
	return s.loadQuestion(ctx, s.store, ref)
}

func (s *Service) LoadCurrentQuestion(ctx context.Context, nid int64) (*Question, error) {
	rec, err := s.store.CurrentQuestion(ctx, nid)
	if err != nil {
		return nil, err
	}
	return s.loadQuestion(ctx, s.store, rec.Ref)
}

func (s *Service) loadQuestion(ctx context.Context, st Store, ref VersionRef) (*Question, error) {
	rec, err := st.GetQuestion(ctx, ref)
	if err != nil {
		return nil, err
	}
	q, err := DecodeQuestion(s.types, rec)
	if err != nil {
		return nil, err
	}
	if maxScore, ok, err := st.Properties(ctx, ref); err != nil {
		return nil, err
	} else if ok {
		q.MaxScore = maxScore
	}
	return q, nil
}

// SaveResult describes one PersistQuestion call.
type SaveResult struct {
	Question    VersionRef       `json:"question"`
	NewVersion  bool             `json:"new_version"`
	Forced      bool             `json:"forced,omitempty"` // a new version was required because the old one was answered
	Errors      ValidationErrors `json:"errors,omitempty"`
	Memberships ReconcileResult  `json:"memberships"`
}

// PromptRetarget reports whether quizzes still point at an older version of
// the question, so a person should decide whether to move them.
func (r SaveResult) PromptRetarget() bool {
	return r.NewVersion && r.Memberships.KeptAny()
}

// PersistQuestion validates and stores q, upserts its max score and applies
// the membership changes, all in one transaction. Validation problems come
// back in SaveResult.Errors with a nil error.
func (s *Service) PersistQuestion(ctx context.Context, actor rbac.Actor, q *Question, isNewVersion bool, changes MembershipChanges) (SaveResult, error) {
	if errs := q.Validate(); !errs.Empty() {
		return SaveResult{Question: q.Ref, Errors: errs}, nil
	}
	if q.Ref.NID == 0 {
		if !s.auth.Allowed(actor, rbac.Resource{Kind: "question"}, rbac.PermQuestionCreate) {
			return SaveResult{}, fmt.Errorf("create question: %w", ErrForbidden)
		}
	} else {
		existing, err := s.store.GetQuestion(ctx, q.Ref)
		if err != nil {
			return SaveResult{}, err
		}
		if !s.auth.Allowed(actor, rbac.Resource{Kind: "question", ID: q.Ref.NID, OwnerID: existing.CreatorID}, rbac.PermQuestionEdit) {
			return SaveResult{}, fmt.Errorf("edit question %s: %w", q.Ref, ErrForbidden)
		}
		if q.CreatorID == "" {
			q.CreatorID = existing.CreatorID
		}
		if existing.Type != q.Type {
			var errs ValidationErrors
			errs.Add("type", "cannot change from %s to %s", existing.Type, q.Type)
			return SaveResult{Question: q.Ref, Errors: errs}, nil
		}
	}

	orig := q.Ref
	res := SaveResult{}
	err := s.store.InTx(ctx, func(tx Store) error {
		newVersion := isNewVersion
		switch {
		case q.Ref.NID == 0:
			nid, err := tx.NextID(ctx)
			if err != nil {
				return err
			}
			vid, err := tx.NextID(ctx)
			if err != nil {
				return err
			}
			q.Ref = VersionRef{NID: nid, VID: vid}
			if q.CreatorID == "" {
				q.CreatorID = actor.ID
			}
			newVersion = true
		case isNewVersion:
			next, err := s.versioner.NewQuestionVersion(ctx, tx, q.Ref)
			if err != nil {
				return err
			}
			q.Ref = next
		default:
			answered, err := s.questionAnswered(ctx, tx, q.Ref)
			if err != nil {
				return err
			}
			if answered {
				next, err := s.versioner.NewQuestionVersion(ctx, tx, q.Ref)
				if err != nil {
					return err
				}
				q.Ref = next
				newVersion = true
				res.Forced = true
			}
		}

		q.MaxScore = q.ComputeMaximumScore()
		rec, err := q.record(s.now().Unix())
		if err != nil {
			return err
		}
		if err := tx.PutQuestion(ctx, rec); err != nil {
			return fmt.Errorf("store question %s: %w", q.Ref, err)
		}
		if newVersion {
			err = tx.InsertProperties(ctx, q.Ref, q.MaxScore)
		} else {
			err = s.updateMaxScore(ctx, tx, q.Ref, q.MaxScore)
		}
		if err != nil {
			return fmt.Errorf("store properties %s: %w", q.Ref, err)
		}

		recon, err := s.reconciler.Apply(ctx, tx, actor, q, changes)
		if err != nil {
			return err
		}
		res.Memberships = recon
		res.NewVersion = newVersion
		res.Question = q.Ref
		return s.logEvents(ctx, tx, syncx.TypeQuestionSaved, q.Ref, res, recon.Revisions)
	})
	if err != nil {
		q.Ref = orig
		return SaveResult{}, err
	}

	s.log.Info("question saved",
		zap.Stringer("question", q.Ref),
		zap.Bool("new_version", res.NewVersion),
		zap.Bool("forced", res.Forced),
		zap.Int("added", len(res.Memberships.Added)),
		zap.Int("removed", len(res.Memberships.Removed)),
		zap.Int("revisions", len(res.Memberships.Revisions)),
		zap.Int("denied", len(res.Memberships.Denied)))
	for _, o := range s.observers {
		o.Reconciled(res.Memberships)
	}
	return res, nil
}

// updateMaxScore changes the stored max score of an unanswered version in
// place. Edges that carried the old question max follow the new one; edges
// with an explicit override keep it. Their quiz aggregates are recomputed.
func (s *Service) updateMaxScore(ctx context.Context, tx Store, ref VersionRef, maxScore int) error {
	old, found, err := tx.Properties(ctx, ref)
	if err != nil {
		return err
	}
	if err := tx.UpdateProperties(ctx, ref, maxScore); err != nil {
		return err
	}
	if !found || old == maxScore {
		return nil
	}
	edges, err := tx.EdgesForChild(ctx, ref)
	if err != nil {
		return err
	}
	for _, e := range edges {
		if e.MaxScore != old {
			continue
		}
		if err := tx.SetEdgeMaxScore(ctx, e.Parent, e.Child, maxScore); err != nil {
			return err
		}
		if _, err := RecomputeMaxScore(ctx, tx, e.Parent); err != nil {
			return err
		}
	}
	return nil
}

// ReconcileMemberships applies a membership diff without touching the
// question itself.
func (s *Service) ReconcileMemberships(ctx context.Context, actor rbac.Actor, ref VersionRef, changes MembershipChanges) (ReconcileResult, error) {
	q, err := s.LoadQuestion(ctx, ref)
	if err != nil {
		return ReconcileResult{}, err
	}
	var res ReconcileResult
	err = s.store.InTx(ctx, func(tx Store) error {
		res, err = s.reconciler.Apply(ctx, tx, actor, q, changes)
		if err != nil {
			return err
		}
		return s.logEvents(ctx, tx, syncx.TypeMembershipsReconciled, ref, res, res.Revisions)
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	for _, o := range s.observers {
		o.Reconciled(res)
	}
	return res, nil
}

// ReviseMemberships moves the named quizzes from question version fromVID to
// the question's current version.
func (s *Service) ReviseMemberships(ctx context.Context, actor rbac.Actor, nid, fromVID int64, quizNIDs []int64) (ReconcileResult, error) {
	from, err := s.LoadQuestion(ctx, VersionRef{NID: nid, VID: fromVID})
	if err != nil {
		return ReconcileResult{}, err
	}
	to, err := s.LoadCurrentQuestion(ctx, nid)
	if err != nil {
		return ReconcileResult{}, err
	}
	if from.Ref == to.Ref {
		return ReconcileResult{Question: to.Ref, Unchanged: uniqueIDs(quizNIDs)}, nil
	}
	var res ReconcileResult
	err = s.store.InTx(ctx, func(tx Store) error {
		res, err = s.reconciler.Retarget(ctx, tx, actor, from, to, quizNIDs)
		if err != nil {
			return err
		}
		return s.logEvents(ctx, tx, syncx.TypeMembershipsReconciled, to.Ref, res, res.Revisions)
	})
	if err != nil {
		return ReconcileResult{}, err
	}
	for _, o := range s.observers {
		o.Reconciled(res)
	}
	return res, nil
}

// DeleteQuestion removes one version, or every version, together with its
// properties, memberships and responses.
func (s *Service) DeleteQuestion(ctx context.Context, actor rbac.Actor, ref VersionRef, onlyThisVersion bool) error {
	rec, err := s.store.GetQuestion(ctx, ref)
	if err != nil {
		return err
	}
	if !s.auth.Allowed(actor, rbac.Resource{Kind: "question", ID: ref.NID, OwnerID: rec.CreatorID}, rbac.PermQuestionDelete) {
		return fmt.Errorf("delete question %s: %w", ref, ErrForbidden)
	}
	return s.store.InTx(ctx, func(tx Store) error {
		refs := []VersionRef{ref}
		if !onlyThisVersion {
			if refs, err = tx.QuestionVersions(ctx, ref.NID); err != nil {
				return err
			}
		}
		touched := map[VersionRef]struct{}{}
		for _, v := range refs {
			edges, err := tx.EdgesForChild(ctx, v)
			if err != nil {
				return err
			}
			for _, e := range edges {
				if _, err := tx.DeleteEdge(ctx, e.Parent, e.Child); err != nil {
					return err
				}
				touched[e.Parent] = struct{}{}
			}
			if err := tx.DeleteQuestionResponses(ctx, v); err != nil {
				return err
			}
			if err := tx.DeleteProperties(ctx, v); err != nil {
				return err
			}
			if err := tx.DeleteQuestion(ctx, v); err != nil {
				return err
			}
		}
		var res ReconcileResult
		if err := s.reconciler.recomputeAll(ctx, tx, touched, &res); err != nil {
			return err
		}
		return s.logEvents(ctx, tx, syncx.TypeQuestionDeleted, ref, map[string]any{
			"versions": refs, "touched": res.Touched,
		}, nil)
	})
}

// QuestionHasBeenAnswered is true when any response references the version,
// or any quiz revision containing it has results. The second half
// over-reports on purpose: an attempt in progress may already show the
// question before anything is saved.
func (s *Service) QuestionHasBeenAnswered(ctx context.Context, ref VersionRef) (bool, error) {
	return s.questionAnswered(ctx, s.store, ref)
}

func (s *Service) questionAnswered(ctx context.Context, st Store, ref VersionRef) (bool, error) {
	ok, err := st.QuestionHasAnswers(ctx, ref)
	if err != nil || ok {
		return ok, err
	}
	return st.QuestionInAnsweredQuiz(ctx, ref)
}

func (s *Service) QuizHasBeenAnswered(ctx context.Context, ref VersionRef) (bool, error) {
	return s.store.QuizHasResults(ctx, ref)
}

// CanRevealCorrectAnswer grants when the actor holds the view-answers
// capability, created the question, or any registered check says yes.
func (s *Service) CanRevealCorrectAnswer(ctx context.Context, actor rbac.Actor, q *Question) bool {
	if s.auth.Allowed(actor, rbac.Resource{Kind: "question", ID: q.Ref.NID, OwnerID: q.CreatorID}, rbac.PermQuestionViewAnswers) {
		return true
	}
	if !actor.Anonymous() && actor.ID == q.CreatorID {
		return true
	}
	for _, fn := range s.access {
		if fn(ctx, actor, q) {
			return true
		}
	}
	return false
}

func (s *Service) CorrectAnswer(ctx context.Context, actor rbac.Actor, ref VersionRef) (any, error) {
	q, err := s.LoadQuestion(ctx, ref)
	if err != nil {
		return nil, err
	}
	if !s.CanRevealCorrectAnswer(ctx, actor, q) {
		return nil, fmt.Errorf("answer of %s: %w", ref, ErrForbidden)
	}
	return q.CorrectAnswer(), nil
}

// ---- quizzes ----

func (s *Service) CreateQuiz(ctx context.Context, actor rbac.Actor, title string, tier Randomization) (Quiz, error) {
	if !s.auth.Allowed(actor, rbac.Resource{Kind: "quiz"}, rbac.PermQuizCreate) {
		return Quiz{}, fmt.Errorf("create quiz: %w", ErrForbidden)
	}
	var errs ValidationErrors
	if strings.TrimSpace(title) == "" {
		errs.Add("title", "is required")
	}
	if tier < RandomizationNone || tier > RandomizationCategorized {
		errs.Add("randomization", "unknown tier %d", tier)
	}
	if !errs.Empty() {
		return Quiz{}, errs
	}
	return s.store.CreateQuiz(ctx, Quiz{
		Title:         strings.TrimSpace(title),
		CreatorID:     actor.ID,
		Randomization: tier,
		CreatedAt:     s.now().Unix(),
	})
}

func (s *Service) GetQuiz(ctx context.Context, nid int64) (Quiz, error) {
	return s.store.CurrentQuiz(ctx, nid)
}

func (s *Service) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	return s.store.ListQuizzes(ctx)
}

func (s *Service) QuizEdges(ctx context.Context, ref VersionRef) ([]Edge, error) {
	if _, err := s.store.GetQuiz(ctx, ref); err != nil {
		return nil, err
	}
	return s.store.EdgesForParent(ctx, ref)
}

// ---- attempts and responses ----

// StartAttempt pins the attempt to the quiz's current revision.
func (s *Service) StartAttempt(ctx context.Context, actor rbac.Actor, quizNID int64) (Attempt, error) {
	if actor.Anonymous() || !s.auth.Allowed(actor, rbac.Resource{Kind: "attempt"}, rbac.PermAttemptCreate) {
		return Attempt{}, fmt.Errorf("start attempt: %w", ErrForbidden)
	}
	quiz, err := s.store.CurrentQuiz(ctx, quizNID)
	if err != nil {
		return Attempt{}, err
	}
	return s.store.CreateAttempt(ctx, Attempt{Quiz: quiz.Ref, UserID: actor.ID, StartedAt: s.now().Unix()})
}

// SubmitResult carries either the stored summary or the reasons the answer
// was rejected.
type SubmitResult struct {
	Summary Summary          `json:"summary"`
	Errors  ValidationErrors `json:"errors,omitempty"`
}

// SubmitResponse scores and stores one answer. Malformed or invalid answers
// are rejected before scoring and nothing is stored.
func (s *Service) SubmitResponse(ctx context.Context, actor rbac.Actor, attemptID, questionNID int64, raw json.RawMessage, doubtful bool) (SubmitResult, error) {
	a, err := s.ownAttempt(ctx, actor, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	q, weight, err := s.attemptQuestion(ctx, s.store, a, questionNID)
	if err != nil {
		return SubmitResult{}, err
	}
	t, ok := s.types.Lookup(q.Type)
	if !ok {
		return SubmitResult{}, fmt.Errorf("question %s type %q: %w", q.Ref, q.Type, ErrUnknownType)
	}
	ans, err := t.DecodeAnswer(q.Definition, raw)
	if err != nil {
		var errs ValidationErrors
		errs.Add("answer", "malformed: %v", err)
		return SubmitResult{Errors: errs}, nil
	}
	resp := NewResponse(a.ID, q, ans, raw)
	resp.ScoreWeight = weight
	resp.SetDoubtful(doubtful)
	if errs := resp.Validate(); !errs.Empty() {
		return SubmitResult{Errors: errs}, nil
	}
	if err := resp.Save(ctx, s.store); err != nil {
		return SubmitResult{}, fmt.Errorf("save response %d/%s: %w", a.ID, q.Ref, err)
	}
	sum := resp.Summary()
	for _, o := range s.observers {
		o.ResponseSaved(q.Type, sum)
	}
	return SubmitResult{Summary: sum}, nil
}

// SkipQuestion records that the taker passed over a question.
func (s *Service) SkipQuestion(ctx context.Context, actor rbac.Actor, attemptID, questionNID int64) (Summary, error) {
	a, err := s.ownAttempt(ctx, actor, attemptID)
	if err != nil {
		return Summary{}, err
	}
	q, weight, err := s.attemptQuestion(ctx, s.store, a, questionNID)
	if err != nil {
		return Summary{}, err
	}
	resp := NewSkippedResponse(a.ID, q)
	resp.ScoreWeight = weight
	if err := resp.Skip(ctx, s.store); err != nil {
		return Summary{}, err
	}
	sum := resp.Summary()
	for _, o := range s.observers {
		o.ResponseSaved(q.Type, sum)
	}
	return sum, nil
}

// LoadResponse rebuilds a stored response in the context of its attempt.
func (s *Service) LoadResponse(ctx context.Context, attemptID, questionNID int64) (*Response, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	q, weight, err := s.attemptQuestion(ctx, s.store, a, questionNID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetResponse(ctx, attemptID, q.Ref)
	if err != nil {
		return nil, err
	}
	resp, err := LoadResponse(s.types, q, rec)
	if err != nil {
		return nil, err
	}
	resp.ScoreWeight = weight
	return resp, nil
}

// GradeResponse stores a manual score for a response awaiting evaluation.
func (s *Service) GradeResponse(ctx context.Context, actor rbac.Actor, attemptID, questionNID int64, points int) (Summary, error) {
	if !s.auth.Allowed(actor, rbac.Resource{Kind: "attempt", ID: attemptID}, rbac.PermAttemptGrade) {
		return Summary{}, fmt.Errorf("grade attempt %d: %w", attemptID, ErrForbidden)
	}
	resp, err := s.LoadResponse(ctx, attemptID, questionNID)
	if err != nil {
		return Summary{}, err
	}
	if err := resp.Grade(points); err != nil {
		return Summary{}, err
	}
	if err := resp.Save(ctx, s.store); err != nil {
		return Summary{}, err
	}
	sum := resp.Summary()
	for _, o := range s.observers {
		o.ResponseSaved(resp.Question.Type, sum)
	}
	return sum, nil
}

// Report is the scored view of one attempt.
type Report struct {
	Attempt   Attempt   `json:"attempt"`
	Score     int       `json:"score"`
	MaxScore  int       `json:"max_score"`
	Percent   int       `json:"percent"`
	Evaluated bool      `json:"evaluated"` // false while any response awaits manual grading
	Questions []Summary `json:"questions"`
}

// FinishAttempt closes the attempt and stores its weighted score.
func (s *Service) FinishAttempt(ctx context.Context, actor rbac.Actor, attemptID int64) (Report, error) {
	a, err := s.ownAttempt(ctx, actor, attemptID)
	if err != nil {
		return Report{}, err
	}
	var rep Report
	err = s.store.InTx(ctx, func(tx Store) error {
		rep, err = s.buildReport(ctx, tx, a)
		if err != nil {
			return err
		}
		rep.Attempt.FinishedAt = s.now().Unix()
		rep.Attempt.Score = rep.Score
		return tx.FinishAttempt(ctx, a.ID, rep.Score, rep.Attempt.FinishedAt)
	})
	if err != nil {
		return Report{}, err
	}
	return rep, nil
}

func (s *Service) AttemptReport(ctx context.Context, actor rbac.Actor, attemptID int64) (Report, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Report{}, err
	}
	if a.UserID != actor.ID && !s.auth.Allowed(actor, rbac.Resource{Kind: "attempt", ID: a.ID, OwnerID: a.UserID}, rbac.PermAttemptViewAll) {
		return Report{}, fmt.Errorf("report of attempt %d: %w", attemptID, ErrForbidden)
	}
	return s.buildReport(ctx, s.store, a)
}

func (s *Service) buildReport(ctx context.Context, st Store, a Attempt) (Report, error) {
	quiz, err := st.GetQuiz(ctx, a.Quiz)
	if err != nil {
		return Report{}, err
	}
	edges, err := st.EdgesForParent(ctx, a.Quiz)
	if err != nil {
		return Report{}, err
	}
	byChild := make(map[VersionRef]Edge, len(edges))
	for _, e := range edges {
		byChild[e.Child] = e
	}
	recs, err := st.AttemptResponses(ctx, a.ID)
	if err != nil {
		return Report{}, err
	}
	rep := Report{Attempt: a, MaxScore: quiz.MaxScore, Evaluated: true, Questions: make([]Summary, 0, len(recs))}
	for _, rec := range recs {
		q, err := s.loadQuestion(ctx, st, rec.Question)
		if err != nil {
			return Report{}, err
		}
		resp, err := LoadResponse(s.types, q, rec)
		if err != nil {
			return Report{}, err
		}
		if e, ok := byChild[q.Ref]; ok {
			resp.ScoreWeight = e.ScoreWeight(q.MaxScore)
		}
		sum := resp.Summary()
		rep.Score += sum.Score
		rep.Evaluated = rep.Evaluated && sum.IsEvaluated
		rep.Questions = append(rep.Questions, sum)
	}
	if rep.MaxScore > 0 {
		rep.Percent = roundHalfAway(100 * float64(rep.Score) / float64(rep.MaxScore))
	}
	return rep, nil
}

func (s *Service) ownAttempt(ctx context.Context, actor rbac.Actor, attemptID int64) (Attempt, error) {
	a, err := s.store.GetAttempt(ctx, attemptID)
	if err != nil {
		return Attempt{}, err
	}
	if actor.Anonymous() || a.UserID != actor.ID {
		return Attempt{}, fmt.Errorf("attempt %d: %w", attemptID, ErrForbidden)
	}
	if a.Finished() {
		return Attempt{}, fmt.Errorf("attempt %d: %w", attemptID, ErrFinished)
	}
	return a, nil
}

// attemptQuestion resolves a question nid to the exact version the attempt's
// quiz revision contains, never a newer one.
func (s *Service) attemptQuestion(ctx context.Context, st Store, a Attempt, nid int64) (*Question, *float64, error) {
	edges, err := st.EdgesForParent(ctx, a.Quiz)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range edges {
		if e.Child.NID != nid {
			continue
		}
		q, err := s.loadQuestion(ctx, st, e.Child)
		if err != nil {
			return nil, nil, err
		}
		return q, e.ScoreWeight(q.MaxScore), nil
	}
	return nil, nil, fmt.Errorf("question %d in quiz %s: %w", nid, a.Quiz, ErrNotFound)
}

// logEvents appends one event for the operation plus one QuizRevised per
// copy-on-write revision, all sharing a run id.
func (s *Service) logEvents(ctx context.Context, tx Store, typ string, key VersionRef, payload any, revisions []Revision) error {
	run := uuid.NewString()
	for _, rv := range revisions {
		if err := s.appendEvent(ctx, tx, syncx.TypeQuizRevised, rv.From, run, rv); err != nil {
			return err
		}
	}
	return s.appendEvent(ctx, tx, typ, key, run, payload)
}

func (s *Service) appendEvent(ctx context.Context, tx Store, typ string, key VersionRef, run string, payload any) error {
	data, err := json.Marshal(map[string]any{"run": run, "data": payload})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", typ, err)
	}
	return tx.AppendEvent(ctx, syncx.Event{Type: typ, Key: key.String(), DataJSON: string(data), CreatedAt: s.now().Unix()})
}

// IsNotFound is shorthand for errors.Is(err, ErrNotFound).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
