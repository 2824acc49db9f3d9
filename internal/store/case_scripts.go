package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"time"
)

// CaseScript is an uploaded case definition kept across restarts.
type CaseScript struct {
	CaseID     string
	Source     []byte
	SHA256     string
	UploadedBy *int64
	UploadedAt time.Time
}

// SaveCaseScript upserts the YAML source of an uploaded case.
func (s *Store) SaveCaseScript(caseID string, source []byte, uploadedBy *int64) (string, error) {
	sum := sha256.Sum256(source)
	hash := hex.EncodeToString(sum[:])
	_, err := s.db.Exec(
		`INSERT INTO case_scripts (case_id, source, sha256, uploaded_by, uploaded_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(case_id) DO UPDATE SET source = excluded.source, sha256 = excluded.sha256,
		 uploaded_by = excluded.uploaded_by, uploaded_at = excluded.uploaded_at`,
		caseID, source, hash, uploadedBy, time.Now(),
	)
	if err != nil {
		return "", err
	}
	return hash, nil
}

// GetCaseScript returns an uploaded case, or nil if there is none.
func (s *Store) GetCaseScript(caseID string) (*CaseScript, error) {
	var cs CaseScript
	err := s.db.QueryRow(
		`SELECT case_id, source, sha256, uploaded_by, uploaded_at FROM case_scripts WHERE case_id = ?`, caseID,
	).Scan(&cs.CaseID, &cs.Source, &cs.SHA256, &cs.UploadedBy, &cs.UploadedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}

// ListCaseScripts returns all uploaded cases ordered by upload time.
func (s *Store) ListCaseScripts() ([]CaseScript, error) {
	rows, err := s.db.Query(`SELECT case_id, source, sha256, uploaded_by, uploaded_at FROM case_scripts ORDER BY uploaded_at, case_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var scripts []CaseScript
	for rows.Next() {
		var cs CaseScript
		if err := rows.Scan(&cs.CaseID, &cs.Source, &cs.SHA256, &cs.UploadedBy, &cs.UploadedAt); err != nil {
			return nil, err
		}
		scripts = append(scripts, cs)
	}
	return scripts, rows.Err()
}

// DeleteCaseScript removes an uploaded case.
func (s *Store) DeleteCaseScript(caseID string) error {
	_, err := s.db.Exec(`DELETE FROM case_scripts WHERE case_id = ?`, caseID)
	return err
}
