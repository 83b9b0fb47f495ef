// Package agent is the conversational session engine: it owns one
// user turn end to end, from normalized utterance through intent,
// reference resolution, tool dispatch, and response composition.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/ewanfisher/voxmail/backend/internal/compose"
	"github.com/ewanfisher/voxmail/backend/internal/intent"
	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
	sessionModel "github.com/ewanfisher/voxmail/backend/internal/model/session"
	"github.com/ewanfisher/voxmail/backend/internal/mailtool"
	"github.com/ewanfisher/voxmail/backend/internal/normalize"
	"github.com/ewanfisher/voxmail/backend/internal/resolve"
	sessionStore "github.com/ewanfisher/voxmail/backend/internal/service/session"
)

var ErrUnknownAccount = errors.New("no mailbox configured for account")

// Classifier is the model boundary for utterances the fixed vocabulary
// cannot place. Implementations must only return actions outside the
// draft workflow.
type Classifier interface {
	Classify(ctx context.Context, utterance string, snap intent.Snapshot) (intent.Decision, error)
}

// ReplyGenerator is the boundary that drafts reply bodies. It never
// sends anything.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, original mailModel.Content, hint string) (string, error)
}

// Service wires the session store, the tool layer, and the model
// boundaries into the turn pipeline.
type Service struct {
	sessions   *sessionStore.Store
	mailboxes  map[string]mailtool.Mailbox
	classifier Classifier
	replies    ReplyGenerator
	composer   *compose.Composer
}

// NewService builds the engine. classifier and replies may be nil; the
// engine then runs on the fixed vocabulary alone and declines drafts.
func NewService(sessions *sessionStore.Store, boxes []mailtool.Mailbox, classifier Classifier, replies ReplyGenerator) *Service {
	mailboxes := make(map[string]mailtool.Mailbox, len(boxes))
	for _, box := range boxes {
		mailboxes[box.Name()] = box
	}
	return &Service{
		sessions:   sessions,
		mailboxes:  mailboxes,
		classifier: classifier,
		replies:    replies,
		composer:   compose.New(),
	}
}

// Turn is the result of one handled utterance.
type Turn struct {
	TurnID     string           `json:"turnId"`
	Action     intent.Action    `json:"action"`
	Transcript string           `json:"transcript"`
	Response   compose.Response `json:"response"`
}

// HandleTurn runs one utterance for one user. All turns for the same
// user serialize on the session lock; the lock is released on every
// exit path.
func (s *Service) HandleTurn(ctx context.Context, userID, raw string) (Turn, error) {
	sess, release, err := s.sessions.Acquire(userID)
	if err != nil {
		return Turn{}, err
	}
	defer release()

	turn := Turn{TurnID: uuid.NewString(), Transcript: raw}

	u := normalize.Normalize(raw)
	if u.Text == "" {
		turn.Action = intent.ActionOffTopic
		turn.Response = compose.Response{Speech: "I didn't catch that. Could you try again?"}
		return turn, nil
	}

	decision, matched := intent.Match(u, sess.Accounts)
	if !matched {
		decision = s.classify(ctx, u, sess)
	}
	turn.Action = decision.Action

	log.Printf("[engine] user=%s turn=%s action=%s mutates=%t", userID, turn.TurnID, decision.Action, decision.Action.MutatesMailbox())

	turn.Response = s.dispatch(ctx, sess, decision, u)
	return turn, nil
}

// Start initializes a session and returns the welcome text.
func (s *Service) Start(userID string) (compose.Response, error) {
	_, release, err := s.sessions.Acquire(userID)
	if err != nil {
		return compose.Response{}, err
	}
	release()
	return compose.Response{Data: compose.WelcomeText()}, nil
}

func (s *Service) classify(ctx context.Context, u normalize.Utterance, sess *sessionModel.Session) intent.Decision {
	if s.classifier == nil {
		return intent.Decision{Action: intent.ActionOffTopic}
	}

	snap := intent.Snapshot{
		Accounts:        sess.Accounts,
		LoadedCount:     len(sess.EmailList),
		HasPendingDraft: sess.PendingDraft != nil,
	}
	if entry, ok := sess.ReadAt(sess.LastReadIndex); ok {
		snap.LastReadFrom = entry.Content.From
		snap.LastReadSubject = entry.Content.Subject
		snap.LastReadAccount = entry.Content.Account
	}

	decision, err := s.classifier.Classify(ctx, u.Text, snap)
	if err != nil {
		log.Printf("[engine] classifier error: %v", err)
		return intent.Decision{Action: intent.ActionOffTopic}
	}
	return decision
}

// dispatch routes a classified decision. Off-topic never reaches a
// tool, and no branch here may leave the pending draft half-cleared.
func (s *Service) dispatch(ctx context.Context, sess *sessionModel.Session, d intent.Decision, u normalize.Utterance) compose.Response {
	switch d.Action {
	case intent.ActionListEmails, intent.ActionSearchEmails:
		return s.handleList(ctx, sess, d)
	case intent.ActionReadEmail:
		return s.handleRead(ctx, sess, d, u)
	case intent.ActionDraftReply:
		return s.handleDraft(ctx, sess, d, u)
	case intent.ActionSendReply:
		return s.handleSend(ctx, sess)
	case intent.ActionCancelDraft:
		return s.handleCancel(sess)
	case intent.ActionStatus:
		return compose.Response{Data: compose.FormatStatus(sess)}
	case intent.ActionHelp:
		return compose.Response{Data: compose.HelpText()}
	case intent.ActionClear:
		sess.Reset()
		return compose.Response{Speech: s.composer.Line(sess, intent.ActionClear)}
	case intent.ActionOffTopic:
		speech := d.Message
		if speech == "" {
			speech = s.composer.Line(sess, intent.ActionOffTopic)
		}
		return compose.Response{Speech: speech}
	default:
		return compose.Response{Speech: s.composer.Line(sess, intent.ActionOffTopic)}
	}
}

func (s *Service) handleList(ctx context.Context, sess *sessionModel.Session, d intent.Decision) compose.Response {
	ref, err := resolve.Resolve(d, "", sess)
	if err != nil {
		return s.clarify(sess, err)
	}

	box, ok := s.mailboxes[ref.Account]
	if !ok {
		return compose.Response{Speech: fmt.Sprintf("I don't have an account called %q. Configured: %s.",
			ref.Account, strings.Join(sess.Accounts, ", "))}
	}

	items, err := s.listWithRetry(ctx, box, d.Query)
	if err != nil {
		// Session state preceding the failed call stays untouched so
		// the user can retry.
		return compose.Response{Data: "Could not reach " + box.Name() + ": " + err.Error()}
	}

	sess.ReplaceList(items)
	return compose.Response{
		Data:   compose.FormatList(sess.EmailList),
		Speech: s.composer.Line(sess, d.Action),
	}
}

// listWithRetry retries an idempotent list exactly once when the
// provider throttled us.
func (s *Service) listWithRetry(ctx context.Context, box mailtool.Mailbox, query string) ([]mailModel.Summary, error) {
	items, err := box.List(ctx, query, 10)
	if err != nil && mailtool.IsRetryable(err) {
		log.Printf("[engine] rate limited by %s, retrying once", box.Name())
		items, err = box.List(ctx, query, 10)
	}
	return items, err
}

func (s *Service) handleRead(ctx context.Context, sess *sessionModel.Session, d intent.Decision, u normalize.Utterance) compose.Response {
	ref, err := resolve.Resolve(d, u.Text, sess)
	if err != nil {
		return s.clarify(sess, err)
	}

	// An index surviving only in the read cache belongs to an earlier
	// list; answer from the cache rather than guessing at the mailbox.
	if _, inList := sess.SummaryAt(ref.Index); !inList {
		if entry, ok := sess.ReadAt(ref.Index); ok {
			sess.LastReadIndex = ref.Index
			return compose.Response{
				Data:   compose.FormatContent(entry.Content),
				Speech: s.composer.Line(sess, intent.ActionReadEmail),
			}
		}
		return compose.Response{Speech: "I don't have that email loaded. Try listing your inbox first."}
	}

	summary, _ := sess.SummaryAt(ref.Index)
	box, ok := s.mailboxes[summary.Account]
	if !ok {
		return compose.Response{Speech: fmt.Sprintf("Account %q is not configured.", summary.Account)}
	}

	content, err := box.Read(ctx, summary.Ref)
	if err != nil && mailtool.IsRetryable(err) {
		content, err = box.Read(ctx, summary.Ref)
	}
	if err != nil {
		var notFound *mailtool.NotFoundError
		if errors.As(err, &notFound) {
			return compose.Response{Speech: fmt.Sprintf("Email %d is gone from the mailbox. Try listing again.", ref.Index)}
		}
		return compose.Response{Data: "Could not read the email: " + err.Error()}
	}

	sess.RememberRead(ref.Index, content)
	return compose.Response{
		Data:   compose.FormatContent(content),
		Speech: s.composer.Line(sess, intent.ActionReadEmail),
	}
}

// clarify maps resolution failures to clarifying questions. The
// session is never mutated on these paths.
func (s *Service) clarify(sess *sessionModel.Session, err error) compose.Response {
	var outOfRange *resolve.OutOfRangeError
	switch {
	case errors.As(err, &outOfRange):
		if outOfRange.Have == 0 {
			return compose.Response{Speech: "Nothing is loaded yet. Say 'check my inbox' first."}
		}
		return compose.Response{Speech: fmt.Sprintf("You only have %d emails loaded. Which one do you mean?", outOfRange.Have)}
	case errors.Is(err, resolve.ErrAmbiguousReference):
		return compose.Response{Speech: "Which email do you mean? Say something like 'read email number 2'."}
	case errors.Is(err, resolve.ErrAmbiguousAccount):
		return compose.Response{Speech: fmt.Sprintf("Which account? You have %s.", strings.Join(sess.Accounts, " and "))}
	default:
		return compose.Response{Speech: "I couldn't work out which email you mean."}
	}
}
