package intent

import (
	"strings"

	"github.com/ewanfisher/voxmail/backend/internal/normalize"
)

// The fixed command vocabulary is matched deterministically before any
// model call. Approval and cancellation in particular must never depend
// on a model's judgement: a reply is only ever sent when the user used
// one of the approval phrases below.

var sendPhrases = []string{
	"send reply", "send it", "send the reply", "yes send", "send them",
}

var cancelPhrases = []string{
	"cancel", "discard", "never mind", "nevermind", "forget it",
}

var draftPhrases = []string{
	"draft", "reply", "respond", "write back",
}

var listPhrases = []string{
	"check my", "check email", "check emails", "check inbox",
	"list emails", "list my emails", "show my emails", "any new emails",
	"new emails", "my inbox",
}

var searchPhrases = []string{
	"search", "find emails", "find email", "look for", "show unread",
	"emails from", "emails about",
}

var helpPhrases = []string{
	"help", "what can you do", "what do you do", "how do you work",
	"what are you", "capabilities",
}

var clearPhrases = []string{
	"clear", "start over", "reset", "forget everything",
}

// Match applies the deterministic command vocabulary to a normalized
// utterance. The second return is false when nothing matched and the
// utterance should go to the model classifier.
func Match(u normalize.Utterance, accounts []string) (Decision, bool) {
	text := u.Text
	account := detectAccount(text, accounts)

	if containsAny(text, cancelPhrases) {
		return Decision{Action: ActionCancelDraft, Account: account}, true
	}
	if containsAny(text, sendPhrases) {
		return Decision{Action: ActionSendReply, Account: account}, true
	}

	if d, ok := matchRead(u, account); ok {
		return d, true
	}

	if containsAny(text, draftPhrases) {
		index := 0
		if len(u.Numbers) > 0 {
			index = u.Numbers[0]
		}
		return Decision{
			Action:  ActionDraftReply,
			Index:   index,
			Account: account,
			Hint:    normalize.ReplyHint(u.Raw),
		}, true
	}

	if containsAny(text, searchPhrases) {
		return Decision{
			Action:  ActionSearchEmails,
			Account: account,
			Query:   searchQuery(text),
		}, true
	}
	if containsAny(text, listPhrases) || (account != "" && strings.Contains(text, "check")) {
		return Decision{Action: ActionListEmails, Account: account}, true
	}

	switch {
	case text == "status" || strings.Contains(text, "session status"):
		return Decision{Action: ActionStatus}, true
	case containsAny(text, clearPhrases):
		return Decision{Action: ActionClear}, true
	case containsAny(text, helpPhrases):
		return Decision{Action: ActionHelp}, true
	}

	return Decision{}, false
}

// matchRead handles "read email number 2", "read email 2", "read the
// second one", and deictic "read it".
func matchRead(u normalize.Utterance, account string) (Decision, bool) {
	text := u.Text
	if !strings.Contains(text, "read") && !strings.Contains(text, "open") {
		return Decision{}, false
	}

	index := 0
	if len(u.Numbers) > 0 {
		index = u.Numbers[0]
	}

	return Decision{Action: ActionReadEmail, Index: index, Account: account}, true
}

// searchQuery recovers a usable query from the fixed search phrasings.
// The model classifier produces richer queries; this keeps search
// working when no model is configured.
func searchQuery(text string) string {
	for _, marker := range []string{"emails from ", "email from ", "from "} {
		if idx := strings.Index(text, marker); idx >= 0 {
			return "from:" + strings.TrimSpace(text[idx+len(marker):])
		}
	}
	for _, marker := range []string{"emails about ", "search for ", "look for ", "find "} {
		if idx := strings.Index(text, marker); idx >= 0 {
			return strings.TrimSpace(text[idx+len(marker):])
		}
	}
	if strings.Contains(text, "unread") {
		return "unread"
	}
	return ""
}

func detectAccount(text string, accounts []string) string {
	for _, name := range accounts {
		if name != "" && strings.Contains(text, strings.ToLower(name)) {
			return name
		}
	}
	return ""
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}
