package syncx

import (
	"context"
	"database/sql"
	"time"
)

// Event types appended by the quiz service.
const (
	TypeQuizRevised           = "QuizRevised"
	TypeMembershipsReconciled = "MembershipsReconciled"
	TypeQuestionSaved         = "QuestionSaved"
	TypeQuestionDeleted       = "QuestionDeleted"
)

type Event struct {
	Offset    int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// Execer is satisfied by both *sql.DB and *sql.Tx so events can be appended
// inside the transaction that produced them.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type EventRepo struct {
	db     Execer
	siteID string
}

func NewEventRepo(db Execer, siteID string) *EventRepo {
	if siteID == "" {
		siteID = "local"
	}
	return &EventRepo{db: db, siteID: siteID}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	created := e.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, created)
	return err
}
