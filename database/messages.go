package database

import (
	"database/sql"
	"errors"

	"bookwhisper/models"
)

var (
	// ErrInvalidSender is returned when an append is attempted by someone who
	// is not a participant of the thread. That indicates a logic defect
	// upstream, not a user error.
	ErrInvalidSender = errors.New("sender is not a thread participant")

	// ErrInvalidMessage is returned when a message violates the payload
	// shape: media kinds need a media URL, text messages must not carry one.
	ErrInvalidMessage = errors.New("malformed message")
)

// AppendMessage validates and appends a message to the end of a thread's log
// and bumps the thread's last_updated. This is the only mutation path for the
// log; entries are never updated or removed individually.
func AppendMessage(threadID string, msg models.Message) error {
	if !msg.Kind.Valid() {
		return ErrInvalidMessage
	}
	if msg.Kind.IsMedia() && msg.MediaURL == "" {
		return ErrInvalidMessage
	}
	if msg.Kind == models.KindText && msg.MediaURL != "" {
		return ErrInvalidMessage
	}

	tx, err := DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lo, hi string
	err = tx.QueryRow(`SELECT participant_lo, participant_hi FROM threads WHERE id = ?`, threadID).
		Scan(&lo, &hi)
	if err == sql.ErrNoRows {
		return ErrThreadNotFound
	}
	if err != nil {
		return err
	}
	if msg.Sender != lo && msg.Sender != hi {
		return ErrInvalidSender
	}

	_, err = tx.Exec(
		`INSERT INTO messages (thread_id, sender, kind, body, media_url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		threadID, msg.Sender, string(msg.Kind), msg.Text, msg.MediaURL, msg.Time,
	)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`UPDATE threads SET last_updated = ? WHERE id = ?`, msg.Time, threadID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// LastMessage returns the most recently appended message of a thread, or nil
// when the log is empty.
func LastMessage(threadID string) (*models.Message, error) {
	msg := models.Message{}
	var kind string
	err := DB.QueryRow(
		`SELECT sender, kind, body, media_url, created_at FROM messages
		WHERE thread_id = ? ORDER BY id DESC LIMIT 1`,
		threadID,
	).Scan(&msg.Sender, &kind, &msg.Text, &msg.MediaURL, &msg.Time)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.Kind = models.MessageKind(kind)
	return &msg, nil
}

func loadMessages(threadID string) ([]models.Message, error) {
	rows, err := DB.Query(
		`SELECT sender, kind, body, media_url, created_at FROM messages
		WHERE thread_id = ? ORDER BY id ASC`,
		threadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var kind string
		if err := rows.Scan(&msg.Sender, &kind, &msg.Text, &msg.MediaURL, &msg.Time); err != nil {
			return nil, err
		}
		msg.Kind = models.MessageKind(kind)
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
