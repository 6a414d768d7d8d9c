package quiz

import (
	"context"
	"fmt"
	"time"
)

// Versioner creates new revisions when copy-on-write is triggered. It runs
// against the transactional store of the operation that needs the revision.
type Versioner interface {
	NewQuizVersion(ctx context.Context, tx Store, quiz VersionRef) (VersionRef, error)
	NewQuestionVersion(ctx context.Context, tx Store, question VersionRef) (VersionRef, error)
}

// StoreVersioner copies the old revision's rows under a fresh vid. Quiz
// revisions carry every edge of the old revision along with them; question
// revisions copy only the question row, properties are written by the save
// that asked for the revision.
type StoreVersioner struct{}

func (StoreVersioner) NewQuizVersion(ctx context.Context, tx Store, ref VersionRef) (VersionRef, error) {
	q, err := tx.GetQuiz(ctx, ref)
	if err != nil {
		return VersionRef{}, err
	}
	vid, err := tx.NextID(ctx)
	if err != nil {
		return VersionRef{}, fmt.Errorf("allocate quiz vid: %w", err)
	}
	next := q
	next.Ref = VersionRef{NID: ref.NID, VID: vid}
	next.CreatedAt = time.Now().Unix()
	if err := tx.InsertQuizVersion(ctx, next); err != nil {
		return VersionRef{}, fmt.Errorf("insert quiz revision %s: %w", next.Ref, err)
	}
	edges, err := tx.EdgesForParent(ctx, ref)
	if err != nil {
		return VersionRef{}, err
	}
	for _, e := range edges {
		e.Parent = next.Ref
		if err := tx.InsertEdge(ctx, e); err != nil {
			return VersionRef{}, fmt.Errorf("copy edge to %s: %w", next.Ref, err)
		}
	}
	return next.Ref, nil
}

func (StoreVersioner) NewQuestionVersion(ctx context.Context, tx Store, ref VersionRef) (VersionRef, error) {
	rec, err := tx.GetQuestion(ctx, ref)
	if err != nil {
		return VersionRef{}, err
	}
	vid, err := tx.NextID(ctx)
	if err != nil {
		return VersionRef{}, fmt.Errorf("allocate question vid: %w", err)
	}
	rec.Ref = VersionRef{NID: ref.NID, VID: vid}
	rec.CreatedAt = time.Now().Unix()
	if err := tx.PutQuestion(ctx, rec); err != nil {
		return VersionRef{}, err
	}
	return rec.Ref, nil
}
