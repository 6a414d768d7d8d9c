package quiz

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// MembershipDecision keeps or removes the question from one quiz.
type MembershipDecision struct {
	QuizNID int64 `json:"quiz_nid"`
	Keep    bool  `json:"keep"`
}

// MembershipChanges is the desired-state diff for one question save.
type MembershipChanges struct {
	KeepOrRemove      []MembershipDecision `json:"keep_or_remove,omitempty"`
	AddFromCandidates []int64              `json:"add_from_candidates,omitempty"`
	CreateNew         string               `json:"create_new,omitempty"` // title of a quiz to create
}

func (c MembershipChanges) Empty() bool {
	return len(c.KeepOrRemove) == 0 && len(c.AddFromCandidates) == 0 && strings.TrimSpace(c.CreateNew) == ""
}

type Revision struct {
	From VersionRef `json:"from"`
	To   VersionRef `json:"to"`
}

// Denial is a requested change the actor was not allowed to make.
type Denial struct {
	QuizNID int64  `json:"quiz_nid,omitempty"`
	Action  string `json:"action"` // remove | add | create | retarget
}

// ReconcileResult reports what a reconcile run actually applied.
type ReconcileResult struct {
	Question  VersionRef   `json:"question"`
	Kept      []VersionRef `json:"kept,omitempty"` // quiz versions that still contain the question
	Added     []Edge       `json:"added,omitempty"`
	Removed   []Edge       `json:"removed,omitempty"`
	Created   *Quiz        `json:"created,omitempty"`
	Revisions []Revision   `json:"revisions,omitempty"`
	Denied    []Denial     `json:"denied,omitempty"`
	Unchanged []int64      `json:"unchanged,omitempty"` // quiz nids already in the requested state
	Touched   []VersionRef `json:"touched,omitempty"`   // quiz versions whose max score was recomputed
}

// KeptAny reports whether at least one membership survived. Callers use it to
// decide whether to offer retargeting after the question got a new version.
func (r ReconcileResult) KeptAny() bool { return len(r.Kept) > 0 }

func (r ReconcileResult) Changed() bool {
	return len(r.Added) > 0 || len(r.Removed) > 0 || r.Created != nil
}

// Reconciler applies membership diffs. It never opens its own transaction:
// every method takes the transactional store of the enclosing operation so
// edge edits and aggregate recomputes commit together.
type Reconciler struct {
	versioner Versioner
	auth      Authorizer
	log       *zap.Logger
}

func NewReconciler(v Versioner, auth Authorizer, log *zap.Logger) *Reconciler {
	if v == nil {
		v = StoreVersioner{}
	}
	if auth == nil {
		auth = AllowAll{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{versioner: v, auth: auth, log: log}
}

// Apply reconciles the question's quiz memberships against changes.
func (r *Reconciler) Apply(ctx context.Context, tx Store, actor rbac.Actor, q *Question, changes MembershipChanges) (ReconcileResult, error) {
	res := ReconcileResult{Question: q.Ref}
	nids := make([]int64, 0, len(changes.KeepOrRemove)+len(changes.AddFromCandidates))
	for _, d := range changes.KeepOrRemove {
		nids = append(nids, d.QuizNID)
	}
	nids = append(nids, changes.AddFromCandidates...)
	if err := lockQuizzes(ctx, tx, nids); err != nil {
		return res, err
	}
	current, err := r.currentMemberships(ctx, tx, q.Ref)
	if err != nil {
		return res, err
	}
	touched := map[VersionRef]struct{}{}

	for _, d := range changes.KeepOrRemove {
		edge, ok := current[d.QuizNID]
		if !ok {
			res.Unchanged = append(res.Unchanged, d.QuizNID)
			continue
		}
		if d.Keep {
			continue
		}
		quiz, err := tx.GetQuiz(ctx, edge.Parent)
		if err != nil {
			return res, err
		}
		if !r.mayEdit(actor, quiz) {
			res.Denied = append(res.Denied, Denial{QuizNID: d.QuizNID, Action: "remove"})
			continue
		}
		target, err := r.writable(ctx, tx, quiz, &res)
		if err != nil {
			return res, err
		}
		if _, err := tx.DeleteEdge(ctx, target, edge.Child); err != nil {
			return res, fmt.Errorf("remove %s from quiz %s: %w", edge.Child, target, err)
		}
		edge.Parent = target
		res.Removed = append(res.Removed, edge)
		touched[target] = struct{}{}
		delete(current, d.QuizNID)
	}

	for _, e := range current {
		res.Kept = append(res.Kept, e.Parent)
	}
	sortRefs(res.Kept)

	for _, nid := range uniqueIDs(changes.AddFromCandidates) {
		if _, ok := current[nid]; ok {
			res.Unchanged = append(res.Unchanged, nid)
			continue
		}
		quiz, err := tx.CurrentQuiz(ctx, nid)
		if err != nil {
			return res, fmt.Errorf("add to quiz %d: %w", nid, err)
		}
		if !r.mayEdit(actor, quiz) {
			res.Denied = append(res.Denied, Denial{QuizNID: nid, Action: "add"})
			continue
		}
		target, err := r.writable(ctx, tx, quiz, &res)
		if err != nil {
			return res, err
		}
		edge, err := r.attach(ctx, tx, target, quiz.Randomization, q)
		if err != nil {
			return res, err
		}
		res.Added = append(res.Added, edge)
		touched[target] = struct{}{}
		current[nid] = edge
	}

	if title := strings.TrimSpace(changes.CreateNew); title != "" {
		if !r.auth.Allowed(actor, rbac.Resource{Kind: "quiz"}, rbac.PermQuizCreate) {
			res.Denied = append(res.Denied, Denial{Action: "create"})
		} else {
			quiz, err := tx.CreateQuiz(ctx, Quiz{Title: title, CreatorID: actor.ID, Randomization: RandomizationNone})
			if err != nil {
				return res, fmt.Errorf("create quiz %q: %w", title, err)
			}
			edge := Edge{Parent: quiz.Ref, Child: q.Ref, MaxScore: q.MaxScore, Mode: quiz.Randomization.ModeFor()}
			if err := tx.InsertEdge(ctx, edge); err != nil {
				return res, fmt.Errorf("attach to new quiz %s: %w", quiz.Ref, err)
			}
			res.Created = &quiz
			res.Added = append(res.Added, edge)
			touched[quiz.Ref] = struct{}{}
		}
	}

	if err := r.recomputeAll(ctx, tx, touched, &res); err != nil {
		return res, err
	}
	return res, nil
}

// Retarget moves the named quizzes' memberships from one question version to
// another. Only quizzes listed in quizNIDs move.
func (r *Reconciler) Retarget(ctx context.Context, tx Store, actor rbac.Actor, from, to *Question, quizNIDs []int64) (ReconcileResult, error) {
	res := ReconcileResult{Question: to.Ref}
	touched := map[VersionRef]struct{}{}
	if err := lockQuizzes(ctx, tx, quizNIDs); err != nil {
		return res, err
	}
	for _, nid := range uniqueIDs(quizNIDs) {
		quiz, err := tx.CurrentQuiz(ctx, nid)
		if err != nil {
			return res, fmt.Errorf("retarget in quiz %d: %w", nid, err)
		}
		edges, err := tx.EdgesForParent(ctx, quiz.Ref)
		if err != nil {
			return res, err
		}
		var old *Edge
		hasTarget := false
		for i := range edges {
			switch edges[i].Child {
			case from.Ref:
				old = &edges[i]
			case to.Ref:
				hasTarget = true
			}
		}
		if old == nil {
			res.Unchanged = append(res.Unchanged, nid)
			continue
		}
		if !r.mayEdit(actor, quiz) {
			res.Denied = append(res.Denied, Denial{QuizNID: nid, Action: "retarget"})
			continue
		}
		target, err := r.writable(ctx, tx, quiz, &res)
		if err != nil {
			return res, err
		}
		if _, err := tx.DeleteEdge(ctx, target, from.Ref); err != nil {
			return res, fmt.Errorf("detach %s from quiz %s: %w", from.Ref, target, err)
		}
		removed := *old
		removed.Parent = target
		res.Removed = append(res.Removed, removed)
		if !hasTarget {
			moved := removed
			moved.Child = to.Ref
			if moved.MaxScore == from.MaxScore {
				moved.MaxScore = to.MaxScore
			}
			if err := tx.InsertEdge(ctx, moved); err != nil {
				return res, fmt.Errorf("attach %s to quiz %s: %w", to.Ref, target, err)
			}
			res.Added = append(res.Added, moved)
		}
		res.Kept = append(res.Kept, target)
		touched[target] = struct{}{}
	}
	if err := r.recomputeAll(ctx, tx, touched, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (r *Reconciler) mayEdit(actor rbac.Actor, quiz Quiz) bool {
	return r.auth.Allowed(actor, rbac.Resource{Kind: "quiz", ID: quiz.Ref.NID, OwnerID: quiz.CreatorID}, rbac.PermQuizEdit)
}

// currentMemberships maps quiz nid -> the edge linking the current revision of
// that quiz to any version of the question, preferring the given version.
func (r *Reconciler) currentMemberships(ctx context.Context, tx Store, q VersionRef) (map[int64]Edge, error) {
	edges, err := tx.EdgesForQuestion(ctx, q.NID)
	if err != nil {
		return nil, err
	}
	latest := map[int64]int64{}
	out := map[int64]Edge{}
	for _, e := range edges {
		nid := e.Parent.NID
		vid, ok := latest[nid]
		if !ok {
			cur, err := tx.CurrentQuiz(ctx, nid)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			vid = cur.Ref.VID
			latest[nid] = vid
		}
		if e.Parent.VID != vid {
			continue
		}
		prev, seen := out[nid]
		if !seen || e.Child == q || (prev.Child != q && e.Child.VID > prev.Child.VID) {
			out[nid] = e
		}
	}
	return out, nil
}

// writable returns the quiz revision an edge change may land on, creating a
// new revision first when the given one already has results.
func (r *Reconciler) writable(ctx context.Context, tx Store, quiz Quiz, res *ReconcileResult) (VersionRef, error) {
	answered, err := tx.QuizHasResults(ctx, quiz.Ref)
	if err != nil {
		return VersionRef{}, err
	}
	if !answered {
		return quiz.Ref, nil
	}
	next, err := r.versioner.NewQuizVersion(ctx, tx, quiz.Ref)
	if err != nil {
		return VersionRef{}, fmt.Errorf("revise answered quiz %s: %w", quiz.Ref, err)
	}
	res.Revisions = append(res.Revisions, Revision{From: quiz.Ref, To: next})
	r.log.Info("answered quiz revised before membership change",
		zap.Stringer("from", quiz.Ref), zap.Stringer("to", next))
	return next, nil
}

// attach inserts an edge below every sibling: weight is 1 + the heaviest
// sibling, or 1 for an empty quiz.
func (r *Reconciler) attach(ctx context.Context, tx Store, parent VersionRef, tier Randomization, q *Question) (Edge, error) {
	siblings, err := tx.EdgesForParent(ctx, parent)
	if err != nil {
		return Edge{}, err
	}
	weight := 1
	if len(siblings) > 0 {
		heaviest := siblings[0].Weight
		for _, s := range siblings[1:] {
			if s.Weight > heaviest {
				heaviest = s.Weight
			}
		}
		weight = heaviest + 1
	}
	edge := Edge{Parent: parent, Child: q.Ref, MaxScore: q.MaxScore, Weight: weight, Mode: tier.ModeFor()}
	if err := tx.InsertEdge(ctx, edge); err != nil {
		return Edge{}, fmt.Errorf("attach %s to quiz %s: %w", q.Ref, parent, err)
	}
	return edge, nil
}

func (r *Reconciler) recomputeAll(ctx context.Context, tx Store, touched map[VersionRef]struct{}, res *ReconcileResult) error {
	refs := make([]VersionRef, 0, len(touched))
	for ref := range touched {
		refs = append(refs, ref)
	}
	sortRefs(refs)
	for _, ref := range refs {
		total, err := RecomputeMaxScore(ctx, tx, ref)
		if err != nil {
			return err
		}
		if res.Created != nil && res.Created.Ref == ref {
			res.Created.MaxScore = total
		}
	}
	res.Touched = refs
	return nil
}

// RecomputeMaxScore stores the sum of edge max scores as the quiz revision's
// cached max score and returns it.
func RecomputeMaxScore(ctx context.Context, tx Store, ref VersionRef) (int, error) {
	edges, err := tx.EdgesForParent(ctx, ref)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range edges {
		total += e.MaxScore
	}
	if err := tx.SetQuizMaxScore(ctx, ref, total); err != nil {
		return 0, fmt.Errorf("update max score of quiz %s: %w", ref, err)
	}
	return total, nil
}

// lockQuizzes locks in ascending nid order so concurrent saves touching
// overlapping quizzes cannot deadlock.
func lockQuizzes(ctx context.Context, tx Store, nids []int64) error {
	ids := uniqueIDs(nids)
	if len(ids) == 0 {
		return nil
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return tx.LockQuizzes(ctx, ids)
}

func sortRefs(refs []VersionRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].NID != refs[j].NID {
			return refs[i].NID < refs[j].NID
		}
		return refs[i].VID < refs[j].VID
	})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == 0 {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
