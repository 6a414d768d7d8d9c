package quiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// dbtx is the subset shared by *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

// SQLStore persists quizzes on sqlite or postgres. Queries use $n
// placeholders, which both drivers accept.
type SQLStore struct {
	conn   *sql.DB // nil on a transactional view
	q      dbtx
	driver db.Driver
	events *syncx.EventRepo
	siteID string
}

func NewSQLStore(conn *sql.DB, driver db.Driver, siteID string) *SQLStore {
	return &SQLStore{conn: conn, q: conn, driver: driver, events: syncx.NewEventRepo(conn, siteID), siteID: siteID}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	if s.conn == nil {
		return fn(s)
	}
	return db.WithTx(ctx, s.conn, nil, func(tx *sql.Tx) error {
		return fn(&SQLStore{q: tx, driver: s.driver, events: syncx.NewEventRepo(tx, s.siteID), siteID: s.siteID})
	})
}

func (s *SQLStore) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var one int
	err := s.q.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO revisions (created_at) VALUES ($1) RETURNING vid`, time.Now().Unix()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return id, nil
}

// ---- quizzes ----

const quizCols = `nid, vid, title, creator_id, randomization, max_score, created_at`

func scanQuiz(row scanner) (Quiz, error) {
	var q Quiz
	var tier int
	if err := row.Scan(&q.Ref.NID, &q.Ref.VID, &q.Title, &q.CreatorID, &tier, &q.MaxScore, &q.CreatedAt); err != nil {
		return Quiz{}, err
	}
	q.Randomization = Randomization(tier)
	return q, nil
}

func (s *SQLStore) CreateQuiz(ctx context.Context, q Quiz) (Quiz, error) {
	err := s.InTx(ctx, func(tx Store) error {
		if q.Ref.IsZero() {
			nid, err := tx.NextID(ctx)
			if err != nil {
				return err
			}
			vid, err := tx.NextID(ctx)
			if err != nil {
				return err
			}
			q.Ref = VersionRef{NID: nid, VID: vid}
		}
		if q.CreatedAt == 0 {
			q.CreatedAt = time.Now().Unix()
		}
		return tx.InsertQuizVersion(ctx, q)
	})
	if err != nil {
		return Quiz{}, err
	}
	return q, nil
}

func (s *SQLStore) InsertQuizVersion(ctx context.Context, q Quiz) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quizzes (`+quizCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		q.Ref.NID, q.Ref.VID, q.Title, q.CreatorID, int(q.Randomization), q.MaxScore, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert quiz %s: %w", q.Ref, err)
	}
	return nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, ref VersionRef) (Quiz, error) {
	q, err := scanQuiz(s.q.QueryRowContext(ctx,
		`SELECT `+quizCols+` FROM quizzes WHERE nid=$1 AND vid=$2`, ref.NID, ref.VID))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, fmt.Errorf("quiz %s: %w", ref, ErrNotFound)
	}
	return q, err
}

func (s *SQLStore) CurrentQuiz(ctx context.Context, nid int64) (Quiz, error) {
	q, err := scanQuiz(s.q.QueryRowContext(ctx,
		`SELECT `+quizCols+` FROM quizzes WHERE nid=$1 ORDER BY vid DESC LIMIT 1`, nid))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, fmt.Errorf("quiz %d: %w", nid, ErrNotFound)
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context) ([]Quiz, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+quizCols+` FROM quizzes q
		WHERE vid = (SELECT MAX(vid) FROM quizzes WHERE nid = q.nid)
		ORDER BY nid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Quiz
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// LockQuizzes takes row locks on every revision of the given quizzes until
// the transaction ends. Revisions committed by the previous holder are
// visible to reads made after the lock. SQLite runs on one connection, so
// its transactions are already serial.
func (s *SQLStore) LockQuizzes(ctx context.Context, nids []int64) error {
	if s.driver != db.DriverPostgres {
		return nil
	}
	for _, nid := range nids {
		if _, err := s.q.ExecContext(ctx, `SELECT vid FROM quizzes WHERE nid=$1 FOR UPDATE`, nid); err != nil {
			return fmt.Errorf("lock quiz %d: %w", nid, err)
		}
	}
	return nil
}

func (s *SQLStore) SetQuizMaxScore(ctx context.Context, ref VersionRef, score int) error {
	res, err := s.q.ExecContext(ctx, `UPDATE quizzes SET max_score=$1 WHERE nid=$2 AND vid=$3`, score, ref.NID, ref.VID)
	if err != nil {
		return err
	}
	return affected(res, fmt.Sprintf("quiz %s", ref))
}

func affected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// ---- questions ----

const questionCols = `nid, vid, type, body, title_override, creator_id, data_json, created_at`

func scanQuestion(row scanner) (QuestionRecord, error) {
	var rec QuestionRecord
	var data string
	if err := row.Scan(&rec.Ref.NID, &rec.Ref.VID, &rec.Type, &rec.Body, &rec.TitleOverride, &rec.CreatorID, &data, &rec.CreatedAt); err != nil {
		return QuestionRecord{}, err
	}
	rec.Data = json.RawMessage(data)
	return rec, nil
}

func (s *SQLStore) PutQuestion(ctx context.Context, rec QuestionRecord) error {
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().Unix()
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO questions (`+questionCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (nid, vid) DO UPDATE SET type=EXCLUDED.type, body=EXCLUDED.body,
			title_override=EXCLUDED.title_override, creator_id=EXCLUDED.creator_id, data_json=EXCLUDED.data_json`,
		rec.Ref.NID, rec.Ref.VID, rec.Type, rec.Body, rec.TitleOverride, rec.CreatorID, string(rec.Data), rec.CreatedAt)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, ref VersionRef) (QuestionRecord, error) {
	rec, err := scanQuestion(s.q.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE nid=$1 AND vid=$2`, ref.NID, ref.VID))
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionRecord{}, fmt.Errorf("question %s: %w", ref, ErrNotFound)
	}
	return rec, err
}

func (s *SQLStore) CurrentQuestion(ctx context.Context, nid int64) (QuestionRecord, error) {
	rec, err := scanQuestion(s.q.QueryRowContext(ctx,
		`SELECT `+questionCols+` FROM questions WHERE nid=$1 ORDER BY vid DESC LIMIT 1`, nid))
	if errors.Is(err, sql.ErrNoRows) {
		return QuestionRecord{}, fmt.Errorf("question %d: %w", nid, ErrNotFound)
	}
	return rec, err
}

func (s *SQLStore) QuestionVersions(ctx context.Context, nid int64) ([]VersionRef, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT nid, vid FROM questions WHERE nid=$1 ORDER BY vid`, nid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []VersionRef
	for rows.Next() {
		var ref VersionRef
		if err := rows.Scan(&ref.NID, &ref.VID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteQuestion(ctx context.Context, ref VersionRef) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM questions WHERE nid=$1 AND vid=$2`, ref.NID, ref.VID)
	return err
}

// ---- per-version properties ----

func (s *SQLStore) InsertProperties(ctx context.Context, ref VersionRef, maxScore int) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO quiz_question_properties (nid, vid, max_score) VALUES ($1,$2,$3)`, ref.NID, ref.VID, maxScore)
	return err
}

func (s *SQLStore) UpdateProperties(ctx context.Context, ref VersionRef, maxScore int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quiz_question_properties SET max_score=$1 WHERE nid=$2 AND vid=$3`, maxScore, ref.NID, ref.VID)
	if err != nil {
		return err
	}
	return affected(res, fmt.Sprintf("properties for %s", ref))
}

func (s *SQLStore) Properties(ctx context.Context, ref VersionRef) (int, bool, error) {
	var maxScore int
	err := s.q.QueryRowContext(ctx,
		`SELECT max_score FROM quiz_question_properties WHERE nid=$1 AND vid=$2`, ref.NID, ref.VID).Scan(&maxScore)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return maxScore, true, nil
}

func (s *SQLStore) DeleteProperties(ctx context.Context, ref VersionRef) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM quiz_question_properties WHERE nid=$1 AND vid=$2`, ref.NID, ref.VID)
	return err
}

// ---- memberships ----

const edgeCols = `parent_nid, parent_vid, child_nid, child_vid, question_status, weight, max_score`

func (s *SQLStore) queryEdges(ctx context.Context, where string, args ...any) ([]Edge, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+edgeCols+` FROM quiz_node_relationship WHERE `+where+`
		ORDER BY parent_vid, weight, child_vid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		var mode string
		if err := rows.Scan(&e.Parent.NID, &e.Parent.VID, &e.Child.NID, &e.Child.VID, &mode, &e.Weight, &e.MaxScore); err != nil {
			return nil, err
		}
		e.Mode = InclusionMode(mode)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) EdgesForParent(ctx context.Context, parent VersionRef) ([]Edge, error) {
	return s.queryEdges(ctx, `parent_vid=$1`, parent.VID)
}

func (s *SQLStore) EdgesForChild(ctx context.Context, child VersionRef) ([]Edge, error) {
	return s.queryEdges(ctx, `child_vid=$1`, child.VID)
}

func (s *SQLStore) EdgesForQuestion(ctx context.Context, nid int64) ([]Edge, error) {
	return s.queryEdges(ctx, `child_nid=$1`, nid)
}

func (s *SQLStore) InsertEdge(ctx context.Context, e Edge) error {
	_, err := s.q.ExecContext(ctx, `INSERT INTO quiz_node_relationship (`+edgeCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		e.Parent.NID, e.Parent.VID, e.Child.NID, e.Child.VID, string(e.Mode), e.Weight, e.MaxScore)
	return err
}

func (s *SQLStore) DeleteEdge(ctx context.Context, parent, child VersionRef) (bool, error) {
	res, err := s.q.ExecContext(ctx,
		`DELETE FROM quiz_node_relationship WHERE parent_vid=$1 AND child_vid=$2`, parent.VID, child.VID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLStore) SetEdgeMaxScore(ctx context.Context, parent, child VersionRef, maxScore int) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quiz_node_relationship SET max_score=$1 WHERE parent_vid=$2 AND child_vid=$3`,
		maxScore, parent.VID, child.VID)
	if err != nil {
		return err
	}
	return affected(res, fmt.Sprintf("edge %s -> %s", parent, child))
}

// ---- attempts ----

func (s *SQLStore) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if a.StartedAt == 0 {
		a.StartedAt = time.Now().Unix()
	}
	err := s.q.QueryRowContext(ctx, `INSERT INTO quiz_node_results (nid, vid, uid, started_at)
		VALUES ($1,$2,$3,$4) RETURNING result_id`,
		a.Quiz.NID, a.Quiz.VID, a.UserID, a.StartedAt).Scan(&a.ID)
	if err != nil {
		return Attempt{}, fmt.Errorf("create attempt: %w", err)
	}
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id int64) (Attempt, error) {
	var a Attempt
	err := s.q.QueryRowContext(ctx, `SELECT result_id, nid, vid, uid, started_at, finished_at, score
		FROM quiz_node_results WHERE result_id=$1`, id).
		Scan(&a.ID, &a.Quiz.NID, &a.Quiz.VID, &a.UserID, &a.StartedAt, &a.FinishedAt, &a.Score)
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	return a, err
}

func (s *SQLStore) FinishAttempt(ctx context.Context, id int64, score int, at int64) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE quiz_node_results SET score=$1, finished_at=$2 WHERE result_id=$3`, score, at, id)
	if err != nil {
		return err
	}
	return affected(res, fmt.Sprintf("attempt %d", id))
}

func (s *SQLStore) QuizHasResults(ctx context.Context, quiz VersionRef) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM quiz_node_results WHERE vid=$1 LIMIT 1`, quiz.VID)
}

func (s *SQLStore) QuestionHasAnswers(ctx context.Context, question VersionRef) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM quiz_node_results_answers WHERE question_vid=$1 LIMIT 1`, question.VID)
}

func (s *SQLStore) QuestionInAnsweredQuiz(ctx context.Context, question VersionRef) (bool, error) {
	return s.exists(ctx, `SELECT 1 FROM quiz_node_relationship r
		JOIN quiz_node_results res ON res.vid = r.parent_vid
		WHERE r.child_vid=$1 LIMIT 1`, question.VID)
}

// ---- responses ----

const responseCols = `result_id, question_nid, question_vid, answer_json, points_awarded, manual_score,
	is_correct, is_skipped, is_doubtful, is_evaluated, answered_at`

func scanResponse(row scanner) (ResponseRecord, error) {
	var rec ResponseRecord
	var answer string
	var manual sql.NullInt64
	if err := row.Scan(&rec.AttemptID, &rec.Question.NID, &rec.Question.VID, &answer, &rec.Score, &manual,
		&rec.IsCorrect, &rec.IsSkipped, &rec.IsDoubtful, &rec.IsEvaluated, &rec.AnsweredAt); err != nil {
		return ResponseRecord{}, err
	}
	if answer != "" {
		rec.Answer = json.RawMessage(answer)
	}
	if manual.Valid {
		v := int(manual.Int64)
		rec.ManualScore = &v
	}
	return rec, nil
}

func (s *SQLStore) SaveResponse(ctx context.Context, rec ResponseRecord) error {
	ok, err := s.exists(ctx, `SELECT 1 FROM quiz_node_results WHERE result_id=$1`, rec.AttemptID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("attempt %d: %w", rec.AttemptID, ErrNotFound)
	}
	var manual sql.NullInt64
	if rec.ManualScore != nil {
		manual = sql.NullInt64{Int64: int64(*rec.ManualScore), Valid: true}
	}
	_, err = s.q.ExecContext(ctx, `INSERT INTO quiz_node_results_answers (`+responseCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (result_id, question_vid) DO UPDATE SET answer_json=EXCLUDED.answer_json,
			points_awarded=EXCLUDED.points_awarded, manual_score=EXCLUDED.manual_score,
			is_correct=EXCLUDED.is_correct, is_skipped=EXCLUDED.is_skipped,
			is_doubtful=EXCLUDED.is_doubtful, is_evaluated=EXCLUDED.is_evaluated,
			answered_at=EXCLUDED.answered_at`,
		rec.AttemptID, rec.Question.NID, rec.Question.VID, string(rec.Answer), rec.Score, manual,
		rec.IsCorrect, rec.IsSkipped, rec.IsDoubtful, rec.IsEvaluated, rec.AnsweredAt)
	return err
}

func (s *SQLStore) GetResponse(ctx context.Context, attemptID int64, question VersionRef) (ResponseRecord, error) {
	rec, err := scanResponse(s.q.QueryRowContext(ctx, `SELECT `+responseCols+`
		FROM quiz_node_results_answers WHERE result_id=$1 AND question_vid=$2`, attemptID, question.VID))
	if errors.Is(err, sql.ErrNoRows) {
		return ResponseRecord{}, fmt.Errorf("response %d/%s: %w", attemptID, question, ErrNotFound)
	}
	return rec, err
}

func (s *SQLStore) AttemptResponses(ctx context.Context, attemptID int64) ([]ResponseRecord, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+responseCols+`
		FROM quiz_node_results_answers WHERE result_id=$1 ORDER BY question_vid`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLStore) DeleteResponse(ctx context.Context, attemptID int64, question VersionRef) error {
	_, err := s.q.ExecContext(ctx,
		`DELETE FROM quiz_node_results_answers WHERE result_id=$1 AND question_vid=$2`, attemptID, question.VID)
	return err
}

func (s *SQLStore) DeleteQuestionResponses(ctx context.Context, question VersionRef) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM quiz_node_results_answers WHERE question_vid=$1`, question.VID)
	return err
}

func (s *SQLStore) AppendEvent(ctx context.Context, e syncx.Event) error {
	return s.events.Append(ctx, e)
}
