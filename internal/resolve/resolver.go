// Package resolve maps an utterance plus session state to a concrete
// target: which email, and on which account.
package resolve

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ewanfisher/voxmail/backend/internal/intent"
	sessionModel "github.com/ewanfisher/voxmail/backend/internal/model/session"
)

// Kind describes how the target was determined.
type Kind int

const (
	NoReference Kind = iota
	ExplicitIndex
	AutoSingleResult
	LastRead
)

// Reference is a resolved target. Index is 1-based; Account is filled
// whenever it could be derived.
type Reference struct {
	Kind    Kind
	Index   int
	Account string
}

var (
	// ErrAmbiguousReference means several candidates exist and nothing
	// picks one out; the caller should ask, not guess.
	ErrAmbiguousReference = errors.New("ambiguous email reference")

	// ErrAmbiguousAccount means no account could be inferred.
	ErrAmbiguousAccount = errors.New("ambiguous account")
)

// OutOfRangeError reports an explicit index outside the current list
// and the read cache.
type OutOfRangeError struct {
	Index int
	Have  int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("email %d is out of range, only %d loaded", e.Index, e.Have)
}

var deicticPhrases = []string{
	"it", "that", "this one", "that one", "the email", "the last one",
}

// Resolve determines the target email for a decision. Rules, in
// priority order: explicit index, the pending draft's target for
// draft/send/cancel verbs, sole list entry for deictic phrases, then
// the last-read pointer.
func Resolve(d intent.Decision, text string, sess *sessionModel.Session) (Reference, error) {
	if d.Index > 0 {
		return resolveExplicit(d, sess)
	}

	switch d.Action {
	case intent.ActionSendReply, intent.ActionCancelDraft:
		if sess.PendingDraft != nil {
			return Reference{
				Kind:    ExplicitIndex,
				Index:   sess.PendingDraft.TargetIndex,
				Account: sess.PendingDraft.Account,
			}, nil
		}
		return Reference{Kind: NoReference}, nil
	case intent.ActionDraftReply:
		// A bare draft verb while a draft is pending regenerates that
		// draft, not whatever was read most recently.
		if sess.PendingDraft != nil {
			return Reference{
				Kind:    ExplicitIndex,
				Index:   sess.PendingDraft.TargetIndex,
				Account: sess.PendingDraft.Account,
			}, nil
		}
		return resolveDeictic(d, sess)
	case intent.ActionReadEmail:
		if isDeictic(text) || len(sess.EmailList) > 0 {
			return resolveDeictic(d, sess)
		}
		return Reference{Kind: NoReference}, ErrAmbiguousReference
	case intent.ActionListEmails, intent.ActionSearchEmails:
		account, err := inferAccount(d.Account, "", sess)
		if err != nil {
			return Reference{Kind: NoReference}, err
		}
		return Reference{Kind: NoReference, Account: account}, nil
	default:
		return Reference{Kind: NoReference}, nil
	}
}

func resolveExplicit(d intent.Decision, sess *sessionModel.Session) (Reference, error) {
	if summary, ok := sess.SummaryAt(d.Index); ok {
		account, err := inferAccount(d.Account, summary.Account, sess)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: ExplicitIndex, Index: d.Index, Account: account}, nil
	}
	// Indices from an earlier generation stay valid for reads as long
	// as the content was cached under them.
	if entry, ok := sess.ReadAt(d.Index); ok {
		account, err := inferAccount(d.Account, entry.Content.Account, sess)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: ExplicitIndex, Index: d.Index, Account: account}, nil
	}
	return Reference{}, &OutOfRangeError{Index: d.Index, Have: len(sess.EmailList)}
}

func resolveDeictic(d intent.Decision, sess *sessionModel.Session) (Reference, error) {
	if len(sess.EmailList) == 1 {
		summary := sess.EmailList[0]
		account, err := inferAccount(d.Account, summary.Account, sess)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: AutoSingleResult, Index: 1, Account: account}, nil
	}

	if sess.LastReadIndex > 0 {
		index := sess.LastReadIndex
		hint := ""
		if entry, ok := sess.ReadAt(index); ok {
			hint = entry.Content.Account
		}
		account, err := inferAccount(d.Account, hint, sess)
		if err != nil {
			return Reference{}, err
		}
		return Reference{Kind: LastRead, Index: index, Account: account}, nil
	}

	return Reference{}, ErrAmbiguousReference
}

// inferAccount picks the account in priority order: named in the
// utterance, carried by the resolved email, sole configured account.
func inferAccount(named, fromEmail string, sess *sessionModel.Session) (string, error) {
	if named != "" {
		return named, nil
	}
	if fromEmail != "" {
		return fromEmail, nil
	}
	if len(sess.Accounts) == 1 {
		return sess.Accounts[0], nil
	}
	return "", ErrAmbiguousAccount
}

func isDeictic(text string) bool {
	for _, p := range deicticPhrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
