package database

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"bookwhisper/models"
)

// ErrThreadNotFound is returned when a thread id does not resolve.
var ErrThreadNotFound = errors.New("thread not found")

// FindThreadByParticipants looks up the thread for an unordered pair.
// Returns nil (not an error) when no thread exists for the pair.
func FindThreadByParticipants(a, b string) (*models.Thread, error) {
	lo, hi := NormalizePair(a, b)
	row := DB.QueryRow(
		`SELECT id, participant_lo, participant_hi, hidden_lo, hidden_hi, last_updated
		FROM threads WHERE participant_lo = ? AND participant_hi = ?`,
		lo, hi,
	)
	thread, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// GetThreadByID retrieves a thread with its full message log.
func GetThreadByID(id string) (*models.Thread, error) {
	row := DB.QueryRow(
		`SELECT id, participant_lo, participant_hi, hidden_lo, hidden_hi, last_updated
		FROM threads WHERE id = ?`,
		id,
	)
	thread, err := scanThread(row)
	if err == sql.ErrNoRows {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return thread, nil
}

// FindOrCreateThread resolves the thread for a pair, creating it with an
// empty log when absent. A concurrent first message from the other side can
// win the insert; the unique pair constraint turns that into a constraint
// error and we fetch the winner instead.
func FindOrCreateThread(a, b string) (*models.Thread, error) {
	thread, err := FindThreadByParticipants(a, b)
	if err != nil {
		return nil, err
	}
	if thread != nil {
		return thread, nil
	}

	lo, hi := NormalizePair(a, b)
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err = DB.Exec(
		`INSERT INTO threads (id, participant_lo, participant_hi, last_updated, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, lo, hi, now, now,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return FindThreadByParticipants(a, b)
		}
		return nil, err
	}

	return &models.Thread{
		ID:           id,
		Participants: [2]string{lo, hi},
		Messages:     []models.Message{},
		LastUpdated:  now,
		HiddenFor:    []string{},
	}, nil
}

// ListThreadsForParticipant returns every thread p belongs to and has not
// cleared, newest activity first, each with its full message log.
func ListThreadsForParticipant(p string) ([]*models.Thread, error) {
	rows, err := DB.Query(
		`SELECT id, participant_lo, participant_hi, hidden_lo, hidden_hi, last_updated
		FROM threads
		WHERE (participant_lo = ? AND hidden_lo = 0)
		   OR (participant_hi = ? AND hidden_hi = 0)
		ORDER BY last_updated DESC`,
		p, p,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*models.Thread
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return threads, nil
}

// HideThread adds p to the thread's hiddenFor set; a second call is a no-op.
// When both participants have hidden it the thread is deleted outright, in
// the same transaction. Reports whether the thread was deleted.
func HideThread(threadID, p string) (bool, error) {
	tx, err := DB.Begin()
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE threads SET
			hidden_lo = CASE WHEN participant_lo = ? THEN 1 ELSE hidden_lo END,
			hidden_hi = CASE WHEN participant_hi = ? THEN 1 ELSE hidden_hi END
		WHERE id = ?`,
		p, p, threadID,
	)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, ErrThreadNotFound
	}

	var hiddenLo, hiddenHi bool
	err = tx.QueryRow(`SELECT hidden_lo, hidden_hi FROM threads WHERE id = ?`, threadID).
		Scan(&hiddenLo, &hiddenHi)
	if err != nil {
		return false, err
	}

	deleted := hiddenLo && hiddenHi
	if deleted {
		if _, err := tx.Exec(`DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
			return false, err
		}
		if _, err := tx.Exec(`DELETE FROM threads WHERE id = ?`, threadID); err != nil {
			return false, err
		}
	}

	return deleted, tx.Commit()
}

// UnhideThread removes p from the thread's hiddenFor set; a no-op when p had
// not hidden it. A single atomic statement, so concurrent appends cannot lose
// the update.
func UnhideThread(threadID, p string) error {
	_, err := DB.Exec(
		`UPDATE threads SET
			hidden_lo = CASE WHEN participant_lo = ? THEN 0 ELSE hidden_lo END,
			hidden_hi = CASE WHEN participant_hi = ? THEN 0 ELSE hidden_hi END
		WHERE id = ?`,
		p, p, threadID,
	)
	return err
}

// DeleteThread hard-deletes a thread and its message log.
func DeleteThread(threadID string) error {
	tx, err := DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE thread_id = ?`, threadID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM threads WHERE id = ?`, threadID); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanThread(row rowScanner) (*models.Thread, error) {
	var (
		thread   models.Thread
		lo, hi   string
		hLo, hHi bool
	)
	if err := row.Scan(&thread.ID, &lo, &hi, &hLo, &hHi, &thread.LastUpdated); err != nil {
		return nil, err
	}
	thread.Participants = [2]string{lo, hi}
	thread.HiddenFor = []string{}
	if hLo {
		thread.HiddenFor = append(thread.HiddenFor, lo)
	}
	if hHi {
		thread.HiddenFor = append(thread.HiddenFor, hi)
	}

	messages, err := loadMessages(thread.ID)
	if err != nil {
		return nil, err
	}
	thread.Messages = messages
	return &thread, nil
}
