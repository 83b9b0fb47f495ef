package mailtool

import (
	"context"

	"github.com/ewanfisher/voxmail/backend/internal/model/mail"
)

// Mailbox is the contract every account adapter satisfies. List and
// Search return summaries without indices; the dispatcher assigns
// 1-based indices when it installs a result set into the session.
type Mailbox interface {
	// Name returns the configured account identifier ("gmail",
	// "icloud", ...).
	Name() string

	// List fetches the most recent messages, optionally filtered by a
	// provider query ("unread", "from:someone").
	List(ctx context.Context, query string, max int) ([]mail.Summary, error)

	// Read fetches the full content for a message reference returned
	// by List.
	Read(ctx context.Context, ref string) (mail.Content, error)

	// Send delivers a plain-text message. This is the only mailbox
	// mutation the engine performs.
	Send(ctx context.Context, to, subject, body string) error
}
