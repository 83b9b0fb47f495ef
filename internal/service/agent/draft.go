package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ewanfisher/voxmail/backend/internal/compose"
	"github.com/ewanfisher/voxmail/backend/internal/intent"
	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
	sessionModel "github.com/ewanfisher/voxmail/backend/internal/model/session"
	"github.com/ewanfisher/voxmail/backend/internal/mailtool"
	"github.com/ewanfisher/voxmail/backend/internal/normalize"
	"github.com/ewanfisher/voxmail/backend/internal/resolve"
)

// The draft workflow is the one place a send can originate. States:
// no draft -> drafted -> sent or cancelled. Approval comes only from
// the fixed vocabulary matched upstream; a failed send leaves the
// draft in place so the user can retry or cancel.

func (s *Service) handleDraft(ctx context.Context, sess *sessionModel.Session, d intent.Decision, u normalize.Utterance) compose.Response {
	if s.replies == nil {
		return compose.Response{Speech: "Reply drafting needs the language model configured, and it isn't."}
	}

	ref, err := resolve.Resolve(d, u.Text, sess)
	if err != nil {
		return s.clarify(sess, err)
	}
	if ref.Index == 0 {
		return compose.Response{Speech: "Read the email you want to answer first, then ask for a reply."}
	}

	entry, ok := sess.ReadAt(ref.Index)
	if !ok {
		return compose.Response{Speech: fmt.Sprintf("Read email %d first so I know what to reply to.", ref.Index)}
	}
	if entry.Generation != sess.Generation {
		if _, stillListed := sess.SummaryAt(ref.Index); !stillListed {
			return compose.Response{Speech: fmt.Sprintf(
				"Email %d was from an earlier list. Read it again before replying.", ref.Index)}
		}
	}

	replaced := false
	if sess.PendingDraft != nil {
		// Never silently overwrite: a new draft request for another
		// email explicitly replaces the old one, and the user is told.
		replaced = sess.PendingDraft.TargetIndex != ref.Index
	}

	hint := d.Hint
	if hint == "" {
		hint = normalize.ReplyHint(u.Raw)
	}

	body, err := s.replies.GenerateReply(ctx, entry.Content, hint)
	if err != nil {
		return compose.Response{Data: "Could not draft a reply: " + err.Error()}
	}

	draft := &mailModel.Draft{
		ID:          uuid.NewString(),
		TargetIndex: ref.Index,
		Account:     entry.Content.Account,
		To:          mailtool.ReplyAddress(entry.Content.From),
		Subject:     mailtool.ReplySubject(entry.Content.Subject),
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}
	sess.PendingDraft = draft

	speech := s.composer.Line(sess, intent.ActionDraftReply)
	if replaced {
		speech = "Replaced the previous draft. " + speech
	}
	return compose.Response{Data: compose.FormatDraft(draft), Speech: speech}
}

func (s *Service) handleSend(ctx context.Context, sess *sessionModel.Session) compose.Response {
	draft := sess.PendingDraft
	if draft == nil {
		return compose.Response{Speech: "There's no draft waiting to be sent. Ask for a reply first."}
	}

	box, ok := s.mailboxes[draft.Account]
	if !ok {
		return compose.Response{Speech: fmt.Sprintf("Account %q is not configured, draft kept.", draft.Account)}
	}

	// Sends are never retried automatically.
	if err := box.Send(ctx, draft.To, draft.Subject, draft.Body); err != nil {
		// Stay drafted so the user can retry or cancel.
		return compose.Response{Data: "Failed to send: " + err.Error() + "\nThe draft is still here; say 'send reply' to retry or 'cancel' to drop it."}
	}

	sess.PendingDraft = nil
	return compose.Response{
		Data:   fmt.Sprintf("Reply sent to %s.", draft.To),
		Speech: s.composer.Line(sess, intent.ActionSendReply),
	}
}

func (s *Service) handleCancel(sess *sessionModel.Session) compose.Response {
	if sess.PendingDraft == nil {
		return compose.Response{Speech: "Nothing to cancel; no draft is pending."}
	}

	sess.PendingDraft = nil
	return compose.Response{Speech: s.composer.Line(sess, intent.ActionCancelDraft)}
}
