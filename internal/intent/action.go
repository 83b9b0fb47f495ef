package intent

// Action is the closed set of supported intents. Everything downstream
// of classification switches exhaustively on this type instead of
// comparing free-form strings.
type Action string

const (
	ActionListEmails   Action = "list_emails"
	ActionReadEmail    Action = "read_email"
	ActionSearchEmails Action = "search_emails"
	ActionDraftReply   Action = "draft_reply"
	ActionSendReply    Action = "send_reply"
	ActionCancelDraft  Action = "cancel_draft"
	ActionStatus       Action = "status"
	ActionHelp         Action = "help"
	ActionClear        Action = "clear"
	ActionOffTopic     Action = "off_topic"
)

// ParseAction maps a classifier-emitted string onto the closed set.
// Anything unrecognized lands on ActionOffTopic rather than erroring.
func ParseAction(raw string) Action {
	switch Action(raw) {
	case ActionListEmails, ActionReadEmail, ActionSearchEmails,
		ActionDraftReply, ActionSendReply, ActionCancelDraft,
		ActionStatus, ActionHelp, ActionClear, ActionOffTopic:
		return Action(raw)
	default:
		return ActionOffTopic
	}
}

// MutatesMailbox reports whether dispatching the action touches the
// external mailbox. Search and draft generation are read-only.
func (a Action) MutatesMailbox() bool {
	return a == ActionSendReply
}

// Decision is the classified form of one utterance: the action plus
// whatever slots the matcher or model could fill.
type Decision struct {
	Action  Action `json:"action"`
	Index   int    `json:"index,omitempty"`
	Account string `json:"account,omitempty"`
	Query   string `json:"query,omitempty"`
	Hint    string `json:"hint,omitempty"`
	Message string `json:"message,omitempty"`
}
