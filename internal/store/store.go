package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/casecoach/internal/model"

	_ "modernc.org/sqlite"
)

// ErrInvalidRating is returned for ratings outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	return s.db.Ping()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS case_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		learner_id TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		case_id TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		title TEXT NOT NULL DEFAULT '',
		score INTEGER NOT NULL CHECK (score BETWEEN 0 AND 100),
		elapsed_seconds INTEGER NOT NULL DEFAULT 0,
		hints_used INTEGER NOT NULL DEFAULT 0,
		milestones TEXT NOT NULL DEFAULT '[]',
		debrief TEXT NOT NULL DEFAULT '',
		completed_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_attempts_learner_case ON case_attempts(learner_id, case_id);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attempts_session ON case_attempts(session_id) WHERE session_id != '';

	CREATE TABLE IF NOT EXISTS attempt_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id INTEGER NOT NULL,
		message_id TEXT NOT NULL,
		role TEXT NOT NULL,
		tag TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (attempt_id) REFERENCES case_attempts(id)
	);

	CREATE TABLE IF NOT EXISTS case_ratings (
		learner_id TEXT NOT NULL,
		case_id TEXT NOT NULL,
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		rated_at DATETIME NOT NULL,
		UNIQUE (learner_id, case_id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'coach',
		active BOOLEAN NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS case_scripts (
		case_id TEXT PRIMARY KEY,
		source BLOB NOT NULL,
		sha256 TEXT NOT NULL,
		uploaded_by INTEGER,
		uploaded_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const attemptColumns = `id, learner_id, session_id, case_id, category, title, score, elapsed_seconds, hints_used, milestones, debrief, completed_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (model.Attempt, error) {
	var a model.Attempt
	var milestones, debrief string
	err := row.Scan(&a.ID, &a.LearnerID, &a.SessionID, &a.CaseID, &a.Category, &a.Title, &a.Score,
		&a.ElapsedSeconds, &a.HintsUsed, &milestones, &debrief, &a.CompletedAt)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(milestones), &a.Milestones); err != nil {
		return a, fmt.Errorf("decode milestones of attempt %d: %w", a.ID, err)
	}
	if debrief != "" {
		a.Debrief = &model.Debrief{}
		if err := json.Unmarshal([]byte(debrief), a.Debrief); err != nil {
			return a, fmt.Errorf("decode debrief of attempt %d: %w", a.ID, err)
		}
	}
	return a, nil
}

func queryAttempts(rows *sql.Rows, err error) ([]model.Attempt, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RecordAttempt stores a finished interview and its transcript. Every attempt
// is kept; the most recent one is used for display.
func (s *Store) RecordAttempt(a model.Attempt) (int64, error) {
	if a.Score < 0 || a.Score > 100 {
		return 0, fmt.Errorf("score %d out of range", a.Score)
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = time.Now()
	}
	// Stored as text; a single zone keeps ORDER BY completed_at chronological.
	a.CompletedAt = a.CompletedAt.UTC()
	if a.Milestones == nil {
		a.Milestones = []string{}
	}
	milestones, err := json.Marshal(a.Milestones)
	if err != nil {
		return 0, fmt.Errorf("encode milestones: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO case_attempts (learner_id, session_id, case_id, category, title, score, elapsed_seconds, hints_used, milestones, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.LearnerID, a.SessionID, a.CaseID, a.Category, a.Title, a.Score, a.ElapsedSeconds, a.HintsUsed, string(milestones), a.CompletedAt,
	)
	if err != nil {
		slog.Error("failed to record attempt", "learner_id", a.LearnerID, "case_id", a.CaseID, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	for _, m := range a.Messages {
		_, err := tx.Exec(
			`INSERT INTO attempt_messages (attempt_id, message_id, role, tag, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
			id, m.ID, m.Role, m.Tag, m.Text, m.CreatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("insert transcript: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	slog.Info("recorded attempt", "id", id, "case_id", a.CaseID, "score", a.Score)
	return id, nil
}

// GetAttempt returns an attempt by ID, or nil if not found.
func (s *Store) GetAttempt(id int64) (*model.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(`SELECT `+attemptColumns+` FROM case_attempts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAttemptBySession returns the attempt recorded for an interview session, or nil.
func (s *Store) GetAttemptBySession(sessionID string) (*model.Attempt, error) {
	if sessionID == "" {
		return nil, nil
	}
	a, err := scanAttempt(s.db.QueryRow(`SELECT `+attemptColumns+` FROM case_attempts WHERE session_id = ?`, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// SetAttemptDebrief stores the model-written debrief of an attempt.
func (s *Store) SetAttemptDebrief(id int64, d model.Debrief) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode debrief: %w", err)
	}
	res, err := s.db.Exec(`UPDATE case_attempts SET debrief = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attempt %d not found", id)
	}
	return nil
}

// LatestScore returns the most recent attempt of a case by a learner, or nil.
func (s *Store) LatestScore(learnerID, caseID string) (*model.Attempt, error) {
	a, err := scanAttempt(s.db.QueryRow(
		`SELECT `+attemptColumns+` FROM case_attempts
		 WHERE learner_id = ? AND case_id = ? ORDER BY completed_at DESC, id DESC LIMIT 1`,
		learnerID, caseID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LatestScores returns the most recent attempt per case for a learner, keyed by case ID.
func (s *Store) LatestScores(learnerID string) (map[string]model.Attempt, error) {
	attempts, err := s.ListAttempts(learnerID)
	if err != nil {
		return nil, err
	}
	latest := make(map[string]model.Attempt)
	for _, a := range attempts {
		// ListAttempts is newest first.
		if _, ok := latest[a.CaseID]; !ok {
			latest[a.CaseID] = a
		}
	}
	return latest, nil
}

// ListAttempts returns a learner's attempts, newest first.
func (s *Store) ListAttempts(learnerID string) ([]model.Attempt, error) {
	return queryAttempts(s.db.Query(
		`SELECT `+attemptColumns+` FROM case_attempts WHERE learner_id = ? ORDER BY completed_at DESC, id DESC`,
		learnerID,
	))
}

// ListAllAttempts returns every attempt, newest first.
func (s *Store) ListAllAttempts() ([]model.Attempt, error) {
	return queryAttempts(s.db.Query(`SELECT ` + attemptColumns + ` FROM case_attempts ORDER BY completed_at DESC, id DESC`))
}

// GetTranscript returns the stored messages of an attempt in order.
func (s *Store) GetTranscript(attemptID int64) ([]model.Message, error) {
	rows, err := s.db.Query(
		`SELECT message_id, role, tag, content, created_at FROM attempt_messages WHERE attempt_id = ? ORDER BY id`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []model.Message
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.Role, &m.Tag, &m.Text, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// LearnerStats aggregates all attempts of a learner.
func (s *Store) LearnerStats(learnerID string) (model.Stats, error) {
	attempts, err := s.ListAttempts(learnerID)
	if err != nil {
		return model.Stats{}, err
	}
	return computeStats(attempts), nil
}

func computeStats(attempts []model.Attempt) model.Stats {
	var st model.Stats
	if len(attempts) == 0 {
		return st
	}
	cases := make(map[string]bool)
	byCat := make(map[string]*model.CategoryStats)
	var order []string
	total := 0
	for _, a := range attempts {
		st.Attempts++
		st.HintsUsed += a.HintsUsed
		total += a.Score
		st.Best = max(st.Best, a.Score)
		cases[a.CaseID] = true
		if st.LastAttempt == nil || a.CompletedAt.After(*st.LastAttempt) {
			t := a.CompletedAt
			st.LastAttempt = &t
		}
		cs, ok := byCat[a.Category]
		if !ok {
			cs = &model.CategoryStats{Category: a.Category}
			byCat[a.Category] = cs
			order = append(order, a.Category)
		}
		cs.Average = (cs.Average*float64(cs.Attempts) + float64(a.Score)) / float64(cs.Attempts+1)
		cs.Attempts++
		cs.Best = max(cs.Best, a.Score)
	}
	st.CasesTried = len(cases)
	st.Average = float64(total) / float64(st.Attempts)
	for _, c := range order {
		st.ByCategory = append(st.ByCategory, *byCat[c])
	}
	return st
}

// RateCase stores a learner's rating of a case. Rating is idempotent: once a
// case is rated, later calls return the stored rating and created=false.
func (s *Store) RateCase(learnerID, caseID string, rating int) (stored int, created bool, err error) {
	if rating < 1 || rating > 5 {
		return 0, false, ErrInvalidRating
	}
	res, err := s.db.Exec(
		`INSERT INTO case_ratings (learner_id, case_id, rating, rated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(learner_id, case_id) DO NOTHING`,
		learnerID, caseID, rating, time.Now(),
	)
	if err != nil {
		return 0, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n == 1 {
		return rating, true, nil
	}
	existing, err := s.GetRating(learnerID, caseID)
	if err != nil {
		return 0, false, err
	}
	if existing == nil {
		return 0, false, fmt.Errorf("rating for %s vanished", caseID)
	}
	return existing.Rating, false, nil
}

// GetRating returns a learner's rating of a case, or nil if unrated.
func (s *Store) GetRating(learnerID, caseID string) (*model.Rating, error) {
	var r model.Rating
	err := s.db.QueryRow(
		`SELECT learner_id, case_id, rating, rated_at FROM case_ratings WHERE learner_id = ? AND case_id = ?`,
		learnerID, caseID,
	).Scan(&r.LearnerID, &r.CaseID, &r.Rating, &r.RatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRatings returns a learner's ratings keyed by case ID.
func (s *Store) ListRatings(learnerID string) (map[string]int, error) {
	rows, err := s.db.Query(`SELECT case_id, rating FROM case_ratings WHERE learner_id = ?`, learnerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ratings := make(map[string]int)
	for rows.Next() {
		var caseID string
		var rating int
		if err := rows.Scan(&caseID, &rating); err != nil {
			return nil, err
		}
		ratings[caseID] = rating
	}
	return ratings, rows.Err()
}

// AttemptCount returns the number of stored attempts.
func (s *Store) AttemptCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM case_attempts`).Scan(&count)
	return count, err
}
