// Package notify turns proforma lifecycle events into queued e-mails.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/laha-editions/proforma/internal/proforma"
	"github.com/laha-editions/proforma/jobs"
)

// Enqueuer submits e-mail tasks.
type Enqueuer interface {
	EnqueueSendEmail(ctx context.Context, payload jobs.SendEmailPayload) (*asynq.TaskInfo, error)
}

// Notifier implements proforma.Notifier on top of the job queue.
type Notifier struct {
	queue     Enqueuer
	directory Directory
}

// NewNotifier wires the notifier.
func NewNotifier(queue Enqueuer, directory Directory) *Notifier {
	return &Notifier{queue: queue, directory: directory}
}

// Notify resolves the addressee of n and enqueues the message. Sent and
// expired notices go to the recipient, accepted notices to the creator.
func (n *Notifier) Notify(ctx context.Context, note proforma.Notification) error {
	to, err := n.addressee(ctx, note)
	if err != nil {
		return err
	}
	subject, body := Compose(note, to.Name)
	if _, err := n.queue.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		ID:      note.ID.String(),
		To:      to.Email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notify: enqueue %s for %s: %w", note.Kind, note.Document.Number, err)
	}
	return nil
}

func (n *Notifier) addressee(ctx context.Context, note proforma.Notification) (Contact, error) {
	doc := note.Document
	if note.Kind == proforma.NotificationAccepted {
		return n.directory.Contact(ctx, "user", doc.CreatedBy)
	}
	if guest, ok := doc.Recipient.Guest(); ok {
		if guest.Email == nil {
			return Contact{}, fmt.Errorf("%w: guest %q", ErrNoAddress, guest.Name)
		}
		return Contact{Name: guest.Name, Email: *guest.Email}, nil
	}
	id, _ := doc.Recipient.ID()
	return n.directory.Contact(ctx, string(doc.Recipient.Kind()), id)
}

// Compose renders the subject and plain text body of note.
func Compose(note proforma.Notification, name string) (string, string) {
	doc := note.Document
	total := FormatAmount(doc.Totals.TotalTTC, doc.Currency)

	var b strings.Builder
	if name != "" {
		fmt.Fprintf(&b, "Bonjour %s,\n\n", name)
	} else {
		b.WriteString("Bonjour,\n\n")
	}

	var subject string
	switch note.Kind {
	case proforma.NotificationSent:
		subject = fmt.Sprintf("Proforma %s", doc.Number)
		fmt.Fprintf(&b, "Veuillez trouver la proforma %s d'un montant de %s TTC.\n", doc.Number, total)
		fmt.Fprintf(&b, "Elle est valable jusqu'au %s.\n", doc.ValidUntil.Format("02/01/2006"))
		if len(doc.Items) > 0 {
			b.WriteString("\n")
			for _, item := range doc.Items {
				fmt.Fprintf(&b, "- %s x%d : %s\n", item.Title, item.Quantity, FormatAmount(item.Amounts.LineTTC, doc.Currency))
			}
		}
	case proforma.NotificationAccepted:
		subject = fmt.Sprintf("Proforma %s acceptée", doc.Number)
		fmt.Fprintf(&b, "La proforma %s adressée à %s a été acceptée (%s TTC).\n", doc.Number, doc.Recipient.DisplayName(), total)
	case proforma.NotificationExpired:
		subject = fmt.Sprintf("Proforma %s expirée", doc.Number)
		fmt.Fprintf(&b, "La proforma %s d'un montant de %s TTC a expiré le %s.\n", doc.Number, total, doc.ValidUntil.Format("02/01/2006"))
	default:
		subject = fmt.Sprintf("Proforma %s", doc.Number)
		fmt.Fprintf(&b, "La proforma %s a été mise à jour.\n", doc.Number)
	}
	return subject, b.String()
}
