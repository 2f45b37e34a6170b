package notify

import (
	"fmt"
	"net"
	"net/smtp"

	"github.com/sirupsen/logrus"
)

// Notifier delivers an out-of-band note from a participant to a contact
// address. Used by the note endpoint only; the messaging core never touches
// contact addresses.
type Notifier interface {
	Notify(toAddress, fromParticipantID, text string) error
}

// SMTPNotifier sends notes as plain-text email.
type SMTPNotifier struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

func (n *SMTPNotifier) Notify(toAddress, fromParticipantID, text string) error {
	msg := fmt.Sprintf(
		"To: %s\r\nFrom: %s\r\nSubject: Note from Anonymous ID %s\r\n\r\n%s\r\n",
		toAddress, n.From, fromParticipantID, text,
	)
	auth := smtp.PlainAuth("", n.Username, n.Password, n.Host)
	addr := net.JoinHostPort(n.Host, n.Port)
	return smtp.SendMail(addr, auth, n.From, []string{toAddress}, []byte(msg))
}

// LogNotifier records notes in the log instead of sending them. Used when
// SMTP is not configured.
type LogNotifier struct {
	Log *logrus.Logger
}

func (n *LogNotifier) Notify(toAddress, fromParticipantID, text string) error {
	n.Log.WithFields(logrus.Fields{
		"to":   toAddress,
		"from": fromParticipantID,
	}).Info("note delivery skipped, smtp not configured")
	return nil
}
