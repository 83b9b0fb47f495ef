// Package compose turns dispatch results into user-facing output. Data
// responses carry structured text (lists, bodies, drafts, status) and
// are never voiced in full; conversational lines are short, rotated per
// action so the assistant never says the same thing twice in a row.
package compose

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ewanfisher/voxmail/backend/internal/intent"
	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
	sessionModel "github.com/ewanfisher/voxmail/backend/internal/model/session"
)

// Response is one turn's output. Data is rendered as text; Speech is
// the short line suitable for a spoken modality.
type Response struct {
	Data   string `json:"data,omitempty"`
	Speech string `json:"speech,omitempty"`
}

const maxListed = 10

var variants = map[intent.Action][]string{
	intent.ActionListEmails: {
		"Here is your inbox.",
		"Fetched your latest emails.",
		"Your inbox, freshly loaded.",
	},
	intent.ActionSearchEmails: {
		"Here is what I found.",
		"These matched your search.",
		"Search results are in.",
	},
	intent.ActionReadEmail: {
		"Here it is.",
		"Reading it now.",
		"This is the one.",
	},
	intent.ActionDraftReply: {
		"Draft ready. Say 'send reply' to send or 'cancel' to drop it.",
		"Here is the draft. 'Send reply' sends it, 'cancel' discards it.",
	},
	intent.ActionSendReply: {
		"Reply sent.",
		"Done, your reply is on its way.",
		"Sent it.",
	},
	intent.ActionCancelDraft: {
		"Draft cancelled.",
		"Dropped the draft, nothing was sent.",
	},
	intent.ActionClear: {
		"Session cleared, starting fresh.",
		"All cleared.",
	},
	intent.ActionOffTopic: {
		"I can only help with your email. Try 'check my inbox'.",
		"That's outside what I do. Ask me about your email instead.",
		"Email is my whole world. Say 'help' to hear what I can do.",
	},
}

// Composer selects conversational lines with per-action rotation
// persisted in the session, keeping output deterministic and testable.
type Composer struct{}

// New returns a Composer.
func New() *Composer { return &Composer{} }

// Line returns the next conversational variant for an action, never
// repeating the variant used on the previous occurrence.
func (c *Composer) Line(sess *sessionModel.Session, action intent.Action) string {
	options := variants[action]
	if len(options) == 0 {
		return ""
	}
	if len(options) == 1 {
		return options[0]
	}

	key := string(action)
	next := 0
	if last, ok := sess.LastVariant[key]; ok {
		next = (last + 1) % len(options)
	}
	sess.LastVariant[key] = next
	return options[next]
}

// FormatList renders a result set the way it is read back to the user.
func FormatList(items []mailModel.Summary) string {
	if len(items) == 0 {
		return "You have no emails matching that query."
	}

	shown := len(items)
	if shown > maxListed {
		shown = maxListed
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d emails. Showing top %d:\n\n", len(items), shown)
	for _, item := range items[:shown] {
		from := item.From
		if len(from) > 40 {
			from = from[:40] + "..."
		}
		subject := item.Subject
		if subject == "" {
			subject = "No subject"
		}
		fmt.Fprintf(&b, "%d. From: %s\n   Subject: %s\n\n", item.Index, from, subject)
	}
	b.WriteString("Say 'read email number 1' to read the first one.")
	return b.String()
}

// FormatContent renders a full email body.
func FormatContent(content mailModel.Content) string {
	subject := content.Subject
	if subject == "" {
		subject = "No subject"
	}
	body := content.Body
	if body == "" {
		body = "No content"
	}
	return fmt.Sprintf("From: %s\nSubject: %s\n\n%s", content.From, subject, body)
}

// FormatDraft renders a pending draft for preview before approval.
func FormatDraft(draft *mailModel.Draft) string {
	return fmt.Sprintf("DRAFT REPLY:\n\nTo: %s\nSubject: %s\n\n%s",
		draft.To, draft.Subject, draft.Body)
}

// FormatStatus dumps the session fields the user can act on. Calling
// it twice without an intervening action yields identical text.
func FormatStatus(sess *sessionModel.Session) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session for %s\n", sess.UserID)
	fmt.Fprintf(&b, "Accounts: %s\n", strings.Join(sess.Accounts, ", "))
	fmt.Fprintf(&b, "Loaded emails: %d\n", len(sess.EmailList))

	if len(sess.ReadCache) > 0 {
		b.WriteString("Read so far:\n")
		indices := make([]int, 0, len(sess.ReadCache))
		for i := range sess.ReadCache {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			entry, _ := sess.ReadAt(i)
			fmt.Fprintf(&b, "  %d. %s (%s)\n", i, entry.Content.Subject, entry.Content.Account)
		}
	}

	if sess.LastReadIndex > 0 {
		fmt.Fprintf(&b, "Last read: email %d\n", sess.LastReadIndex)
	} else {
		b.WriteString("Last read: none\n")
	}

	if sess.PendingDraft != nil {
		fmt.Fprintf(&b, "Pending draft: reply to email %d on %s\n",
			sess.PendingDraft.TargetIndex, sess.PendingDraft.Account)
	} else {
		b.WriteString("Pending draft: none\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// HelpText lists the voice command surface.
func HelpText() string {
	return strings.Join([]string{
		"VOICE COMMANDS",
		"",
		"Reading:",
		"  'Check my gmail' / 'Check my icloud'",
		"  'Read email number 1'",
		"",
		"Searching:",
		"  'Find emails from John'",
		"  'Search for emails about meetings'",
		"  'Show unread emails'",
		"",
		"Replying (after reading an email):",
		"  'Draft a reply' / 'Reply saying I will attend'",
		"  'Send reply' to approve, 'cancel' to discard",
		"",
		"Session:",
		"  'status' shows loaded and read emails",
		"  'clear' starts over",
	}, "\n")
}

// WelcomeText greets a new session.
func WelcomeText() string {
	return "Voice email assistant ready. Say 'check my inbox' to begin, or 'help' for the full command list."
}
