package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"bookwhisper/database"
	"bookwhisper/metrics"
	"bookwhisper/models"
)

// ErrSelfMessage is returned when sender and recipient are the same
// participant; a thread always holds two distinct identifiers.
var ErrSelfMessage = errors.New("cannot message yourself")

// Deliverer pushes an event to every live connection a participant currently
// has. Delivery is best-effort and must never block the caller.
type Deliverer interface {
	Deliver(participantID string, event models.Event)
}

// Coordinator runs the end-to-end thread operations: find-or-create, append,
// visibility bookkeeping, contact bookkeeping and live fan-out. The durable
// write path and the live path are independent; only durable failures abort
// an operation.
type Coordinator struct {
	deliverer Deliverer
	log       *logrus.Logger
}

func NewCoordinator(deliverer Deliverer, log *logrus.Logger) *Coordinator {
	return &Coordinator{deliverer: deliverer, log: log}
}

// SendText appends a text message to the pair's thread, creating the thread
// on first contact.
func (c *Coordinator) SendText(sender, recipient, text string) (*models.Thread, error) {
	return c.send(sender, recipient, models.Message{
		Sender: sender,
		Text:   text,
		Kind:   models.KindText,
		Time:   time.Now().UTC(),
	})
}

// SendMedia appends an image or video message. Text carries the original
// filename; mediaURL must already be durable.
func (c *Coordinator) SendMedia(sender, recipient, fileName, mediaURL string, kind models.MessageKind) (*models.Thread, error) {
	return c.send(sender, recipient, models.Message{
		Sender:   sender,
		Text:     fileName,
		MediaURL: mediaURL,
		Kind:     kind,
		Time:     time.Now().UTC(),
	})
}

func (c *Coordinator) send(sender, recipient string, msg models.Message) (*models.Thread, error) {
	if sender == recipient {
		return nil, ErrSelfMessage
	}

	thread, err := database.FindOrCreateThread(sender, recipient)
	if err != nil {
		return nil, fmt.Errorf("resolve thread: %w", err)
	}

	// Whether this send makes the contact relation mutual is decided by the
	// log as it stood before the append.
	replied := false
	for _, m := range thread.Messages {
		if m.Sender == recipient {
			replied = true
			break
		}
	}

	if err := database.AppendMessage(thread.ID, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	metrics.MessagesStored.WithLabelValues(string(msg.Kind)).Inc()

	// Sending revives a previously cleared conversation for the sender.
	if err := database.UnhideThread(thread.ID, sender); err != nil {
		return nil, fmt.Errorf("unhide thread: %w", err)
	}

	// Ledger staleness is self-healing; never fail a durable send over it.
	if err := database.RecordContact(sender, recipient); err != nil {
		c.log.WithError(err).WithField("owner", sender).Warn("contact record failed")
	}
	if replied {
		if err := database.RecordContact(recipient, sender); err != nil {
			c.log.WithError(err).WithField("owner", recipient).Warn("contact record failed")
		}
	}

	thread, err = database.GetThreadByID(thread.ID)
	if err != nil {
		return nil, fmt.Errorf("reload thread: %w", err)
	}

	if c.deliverer != nil {
		event, err := models.NewEvent(models.EventReceiveMessage, msg)
		if err != nil {
			c.log.WithError(err).Error("encode receive_message event")
		} else {
			c.deliverer.Deliver(recipient, event)
		}
	}

	return thread, nil
}

// ListThreads returns the caller's visible conversations, newest activity
// first.
func (c *Coordinator) ListThreads(participant string) ([]models.ThreadSummary, error) {
	threads, err := database.ListThreadsForParticipant(participant)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	summaries := make([]models.ThreadSummary, 0, len(threads))
	for _, t := range threads {
		s := models.ThreadSummary{
			ID:          t.ID,
			Contact:     t.Other(participant),
			Messages:    t.Messages,
			LastUpdated: t.LastUpdated,
		}
		if len(t.Messages) > 0 {
			last := t.Messages[len(t.Messages)-1]
			s.LastMessage = &last
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// ClearThread hides the thread from participant's view. Once both sides have
// cleared it the thread is deleted outright; until then the log stays fully
// intact for the other participant.
func (c *Coordinator) ClearThread(participant, threadID string) error {
	thread, err := database.GetThreadByID(threadID)
	if err != nil {
		return err
	}
	// A stranger's thread is indistinguishable from a missing one.
	if !thread.HasParticipant(participant) {
		return database.ErrThreadNotFound
	}

	deleted, err := database.HideThread(threadID, participant)
	if err != nil {
		return err
	}
	if deleted {
		metrics.ThreadsDeleted.Inc()
		c.log.WithField("thread", threadID).Info("thread cleared by both participants, deleted")
	}
	return nil
}
