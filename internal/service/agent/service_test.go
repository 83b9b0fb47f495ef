package agent_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ewanfisher/voxmail/backend/internal/intent"
	"github.com/ewanfisher/voxmail/backend/internal/mailtool"
	mailModel "github.com/ewanfisher/voxmail/backend/internal/model/mail"
	agentService "github.com/ewanfisher/voxmail/backend/internal/service/agent"
	sessionService "github.com/ewanfisher/voxmail/backend/internal/service/session"
)

// fakeMailbox records every call so tests can assert exactly which
// tools a turn touched.
type fakeMailbox struct {
	name      string
	items     []mailModel.Summary
	contents  map[string]mailModel.Content
	listCalls int
	readCalls int
	sendCalls int
	listErr   error
	failOnce  bool
	sendErr   error
}

func (f *fakeMailbox) Name() string { return f.name }

func (f *fakeMailbox) List(_ context.Context, _ string, _ int) ([]mailModel.Summary, error) {
	f.listCalls++
	if f.listErr != nil {
		err := f.listErr
		if f.failOnce {
			f.listErr = nil
		}
		return nil, err
	}
	out := make([]mailModel.Summary, len(f.items))
	copy(out, f.items)
	return out, nil
}

func (f *fakeMailbox) Read(_ context.Context, ref string) (mailModel.Content, error) {
	f.readCalls++
	content, ok := f.contents[ref]
	if !ok {
		return mailModel.Content{}, &mailtool.NotFoundError{Ref: ref}
	}
	return content, nil
}

func (f *fakeMailbox) Send(_ context.Context, _, _, _ string) error {
	f.sendCalls++
	return f.sendErr
}

// fakeClassifier stands in for the model boundary.
type fakeClassifier struct {
	decision intent.Decision
	err      error
	calls    int
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, _ intent.Snapshot) (intent.Decision, error) {
	f.calls++
	return f.decision, f.err
}

type fakeReplies struct {
	body string
	err  error
}

func (f *fakeReplies) GenerateReply(_ context.Context, _ mailModel.Content, hint string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if hint != "" {
		return f.body + " (" + hint + ")", nil
	}
	return f.body, nil
}

func newMailbox(name string, n int) *fakeMailbox {
	box := &fakeMailbox{name: name, contents: make(map[string]mailModel.Content)}
	for i := 1; i <= n; i++ {
		ref := fmt.Sprintf("uid-%d", i)
		box.items = append(box.items, mailModel.Summary{
			Account: name,
			From:    fmt.Sprintf("Sender %d <sender%d@example.com>", i, i),
			Subject: fmt.Sprintf("Subject %d", i),
			Ref:     ref,
		})
		box.contents[ref] = mailModel.Content{
			Ref:     ref,
			Account: name,
			From:    fmt.Sprintf("Sender %d <sender%d@example.com>", i, i),
			Subject: fmt.Sprintf("Subject %d", i),
			Body:    fmt.Sprintf("Body %d", i),
		}
	}
	return box
}

func newEngine(box *fakeMailbox, classifier agentService.Classifier, replies agentService.ReplyGenerator) (*agentService.Service, *sessionService.Store) {
	store := sessionService.NewStore([]string{box.name}, 30*time.Minute)
	return agentService.NewService(store, []mailtool.Mailbox{box}, classifier, replies), store
}

func turn(t *testing.T, engine *agentService.Service, userID, text string) agentService.Turn {
	t.Helper()
	result, err := engine.HandleTurn(context.Background(), userID, text)
	if err != nil {
		t.Fatalf("HandleTurn(%q): %v", text, err)
	}
	return result
}

func TestFullReplyWorkflow(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, store := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	result := turn(t, engine, "alice", "check my inbox")
	if result.Action != intent.ActionListEmails {
		t.Fatalf("got action %s, want list_emails", result.Action)
	}
	if !strings.Contains(result.Response.Data, "Found 3 emails") {
		t.Fatalf("list output:\n%s", result.Response.Data)
	}

	result = turn(t, engine, "alice", "read email number 2")
	if result.Action != intent.ActionReadEmail {
		t.Fatalf("got action %s, want read_email", result.Action)
	}
	if !strings.Contains(result.Response.Data, "Body 2") {
		t.Fatalf("read output:\n%s", result.Response.Data)
	}

	result = turn(t, engine, "alice", "reply saying I will attend")
	if result.Action != intent.ActionDraftReply {
		t.Fatalf("got action %s, want draft_reply", result.Action)
	}
	if !strings.Contains(result.Response.Data, "DRAFT REPLY:") {
		t.Fatalf("draft output:\n%s", result.Response.Data)
	}
	if !strings.Contains(result.Response.Data, "To: sender2@example.com") {
		t.Fatalf("draft should target the last-read sender:\n%s", result.Response.Data)
	}
	if !strings.Contains(result.Response.Data, "Re: Subject 2") {
		t.Fatalf("draft subject:\n%s", result.Response.Data)
	}
	if box.sendCalls != 0 {
		t.Fatalf("drafting must not send, got %d sends", box.sendCalls)
	}

	result = turn(t, engine, "alice", "send it")
	if result.Action != intent.ActionSendReply {
		t.Fatalf("got action %s, want send_reply", result.Action)
	}
	if box.sendCalls != 1 {
		t.Fatalf("got %d sends, want 1", box.sendCalls)
	}
	if !strings.Contains(result.Response.Data, "Reply sent to sender2@example.com") {
		t.Fatalf("send output:\n%s", result.Response.Data)
	}

	sess, release, _ := store.Acquire("alice")
	pending := sess.PendingDraft
	release()
	if pending != nil {
		t.Fatal("draft should be cleared after a successful send")
	}

	// Approving again with no draft is a no-op.
	result = turn(t, engine, "alice", "send it")
	if box.sendCalls != 1 {
		t.Fatalf("got %d sends after second approval, want 1", box.sendCalls)
	}
	if !strings.Contains(result.Response.Speech, "no draft waiting") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestCancelDropsDraftWithoutSending(t *testing.T) {
	box := newMailbox("gmail", 2)
	engine, store := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 1")
	turn(t, engine, "alice", "draft a reply")

	result := turn(t, engine, "alice", "cancel")
	if result.Action != intent.ActionCancelDraft {
		t.Fatalf("got action %s, want cancel_draft", result.Action)
	}
	if box.sendCalls != 0 {
		t.Fatalf("cancel must not send, got %d sends", box.sendCalls)
	}

	sess, release, _ := store.Acquire("alice")
	pending := sess.PendingDraft
	release()
	if pending != nil {
		t.Fatal("draft should be gone after cancel")
	}

	// Drafting again after a cancel starts fresh.
	result = turn(t, engine, "alice", "draft a reply")
	if result.Action != intent.ActionDraftReply {
		t.Fatalf("got action %s, want draft_reply", result.Action)
	}
}

func TestSendFailureKeepsDraft(t *testing.T) {
	box := newMailbox("gmail", 1)
	box.sendErr = &mailtool.TransportError{Account: "gmail", Op: "send", Err: errors.New("connection reset")}
	engine, store := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read it")
	turn(t, engine, "alice", "draft a reply")

	result := turn(t, engine, "alice", "send reply")
	if box.sendCalls != 1 {
		t.Fatalf("got %d sends, want 1 (sends are never auto-retried)", box.sendCalls)
	}
	if !strings.Contains(result.Response.Data, "The draft is still here") {
		t.Fatalf("failure output:\n%s", result.Response.Data)
	}

	sess, release, _ := store.Acquire("alice")
	pending := sess.PendingDraft
	release()
	if pending == nil {
		t.Fatal("draft must survive a failed send")
	}

	// The retry has to be explicit.
	box.sendErr = nil
	turn(t, engine, "alice", "send reply")
	if box.sendCalls != 2 {
		t.Fatalf("got %d sends, want 2", box.sendCalls)
	}
}

func TestSingleResultAutoResolves(t *testing.T) {
	box := newMailbox("gmail", 1)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	result := turn(t, engine, "alice", "read it")
	if !strings.Contains(result.Response.Data, "Body 1") {
		t.Fatalf("sole result should auto-resolve:\n%s", result.Response.Data)
	}
}

func TestReadTheLastOneMeansLastRead(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 2")

	result := turn(t, engine, "alice", "read the last one")
	if !strings.Contains(result.Response.Data, "Body 2") {
		t.Fatalf("'the last one' should re-read email 2:\n%s", result.Response.Data)
	}
}

func TestAmbiguousReadAsksInsteadOfGuessing(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	result := turn(t, engine, "alice", "read it")
	if box.readCalls != 0 {
		t.Fatalf("ambiguous reference must not touch the mailbox, got %d reads", box.readCalls)
	}
	if !strings.Contains(result.Response.Speech, "Which email") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestOutOfRangeIndex(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	result := turn(t, engine, "alice", "read email number 9")
	if !strings.Contains(result.Response.Speech, "only have 3 emails") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}

	engine2, _ := newEngine(newMailbox("gmail", 3), nil, nil)
	result = turn(t, engine2, "bob", "read email number 1")
	if !strings.Contains(result.Response.Speech, "Nothing is loaded yet") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestOffTopicNeverReachesTools(t *testing.T) {
	box := newMailbox("gmail", 3)
	classifier := &fakeClassifier{decision: intent.Decision{Action: intent.ActionOffTopic, Message: "I only do email."}}
	engine, _ := newEngine(box, classifier, nil)

	result := turn(t, engine, "alice", "tell me a joke")
	if result.Action != intent.ActionOffTopic {
		t.Fatalf("got action %s, want off_topic", result.Action)
	}
	if classifier.calls != 1 {
		t.Fatalf("got %d classifier calls, want 1", classifier.calls)
	}
	if box.listCalls != 0 || box.readCalls != 0 || box.sendCalls != 0 {
		t.Fatalf("off-topic touched tools: list=%d read=%d send=%d", box.listCalls, box.readCalls, box.sendCalls)
	}
	if result.Response.Speech != "I only do email." {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestHelpDoesNotDispatch(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, nil)

	result := turn(t, engine, "alice", "what can you do")
	if result.Action != intent.ActionHelp {
		t.Fatalf("got action %s, want help", result.Action)
	}
	if box.listCalls != 0 {
		t.Fatalf("help touched the mailbox: %d list calls", box.listCalls)
	}
	if !strings.Contains(result.Response.Data, "VOICE COMMANDS") {
		t.Fatalf("help output:\n%s", result.Response.Data)
	}
}

func TestClassifierErrorDegradesToOffTopic(t *testing.T) {
	box := newMailbox("gmail", 3)
	classifier := &fakeClassifier{err: errors.New("model unavailable")}
	engine, _ := newEngine(box, classifier, nil)

	result := turn(t, engine, "alice", "tell me a joke")
	if result.Action != intent.ActionOffTopic {
		t.Fatalf("got action %s, want off_topic", result.Action)
	}
}

func TestListRetriesOnceWhenRateLimited(t *testing.T) {
	box := newMailbox("gmail", 2)
	box.listErr = &mailtool.RateLimitError{Account: "gmail"}
	box.failOnce = true
	engine, _ := newEngine(box, nil, nil)

	result := turn(t, engine, "alice", "check my inbox")
	if box.listCalls != 2 {
		t.Fatalf("got %d list calls, want 2", box.listCalls)
	}
	if !strings.Contains(result.Response.Data, "Found 2 emails") {
		t.Fatalf("list output:\n%s", result.Response.Data)
	}
}

func TestListFailureLeavesSessionUntouched(t *testing.T) {
	box := newMailbox("gmail", 2)
	engine, store := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")

	box.listErr = &mailtool.TransportError{Account: "gmail", Op: "list", Err: errors.New("dial timeout")}
	result := turn(t, engine, "alice", "check my inbox")
	if !strings.Contains(result.Response.Data, "Could not reach gmail") {
		t.Fatalf("failure output:\n%s", result.Response.Data)
	}

	sess, release, _ := store.Acquire("alice")
	loaded := len(sess.EmailList)
	release()
	if loaded != 2 {
		t.Fatalf("got %d loaded after failed refresh, want the previous 2", loaded)
	}
}

func TestStaleDraftTargetRejected(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 2")

	// Refresh shrinks the list; index 2 now only lives in the cache.
	box.items = box.items[:1]
	turn(t, engine, "alice", "check my inbox")

	result := turn(t, engine, "alice", "reply to email 2")
	if !strings.Contains(result.Response.Speech, "earlier list") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
	if box.sendCalls != 0 {
		t.Fatalf("stale draft produced %d sends", box.sendCalls)
	}
}

func TestStaleReadServedFromCache(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 3")

	box.items = box.items[:1]
	turn(t, engine, "alice", "check my inbox")

	reads := box.readCalls
	result := turn(t, engine, "alice", "read email number 3")
	if box.readCalls != reads {
		t.Fatalf("stale index should be served from the cache, got %d extra reads", box.readCalls-reads)
	}
	if !strings.Contains(result.Response.Data, "Body 3") {
		t.Fatalf("cached output:\n%s", result.Response.Data)
	}
}

func TestDraftReplacementIsAnnounced(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 1")
	turn(t, engine, "alice", "read email number 2")
	turn(t, engine, "alice", "reply to email 1")

	result := turn(t, engine, "alice", "reply to email 2")
	if !strings.Contains(result.Response.Speech, "Replaced the previous draft") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestBareRedraftKeepsPendingTarget(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, store := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 1")
	turn(t, engine, "alice", "reply to email 1")
	turn(t, engine, "alice", "read email number 2")

	// A bare draft verb regenerates the pending draft, it does not
	// retarget to the email read in between.
	result := turn(t, engine, "alice", "draft a reply")
	if strings.Contains(result.Response.Speech, "Replaced") {
		t.Fatalf("redraft of the same target announced a replacement: %q", result.Response.Speech)
	}

	sess, release, _ := store.Acquire("alice")
	target := sess.PendingDraft.TargetIndex
	release()
	if target != 1 {
		t.Fatalf("got target %d, want the pending draft's email 1", target)
	}
}

func TestDraftWithoutModelDeclines(t *testing.T) {
	box := newMailbox("gmail", 1)
	engine, _ := newEngine(box, nil, nil)

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read it")
	result := turn(t, engine, "alice", "draft a reply")
	if !strings.Contains(result.Response.Speech, "language model") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestDraftRequiresReadFirst(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, _ := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	result := turn(t, engine, "alice", "reply to email 2")
	if !strings.Contains(result.Response.Speech, "Read email 2 first") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestClearResetsSession(t *testing.T) {
	box := newMailbox("gmail", 3)
	engine, store := newEngine(box, nil, &fakeReplies{body: "Sounds good."})

	turn(t, engine, "alice", "check my inbox")
	turn(t, engine, "alice", "read email number 1")
	turn(t, engine, "alice", "draft a reply")

	result := turn(t, engine, "alice", "start over")
	if result.Action != intent.ActionClear {
		t.Fatalf("got action %s, want clear", result.Action)
	}

	sess, release, _ := store.Acquire("alice")
	defer release()
	if len(sess.EmailList) != 0 || sess.PendingDraft != nil || sess.LastReadIndex != 0 {
		t.Fatalf("session not reset: %+v", sess)
	}
}

func TestEmptyUtterance(t *testing.T) {
	box := newMailbox("gmail", 1)
	engine, _ := newEngine(box, nil, nil)

	result := turn(t, engine, "alice", "   ")
	if !strings.Contains(result.Response.Speech, "didn't catch that") {
		t.Fatalf("speech: %q", result.Response.Speech)
	}
}

func TestMissingUserRejected(t *testing.T) {
	box := newMailbox("gmail", 1)
	engine, _ := newEngine(box, nil, nil)

	_, err := engine.HandleTurn(context.Background(), "", "check my inbox")
	if !errors.Is(err, sessionService.ErrUserRequired) {
		t.Fatalf("got %v, want ErrUserRequired", err)
	}
}

func TestStartReturnsWelcome(t *testing.T) {
	box := newMailbox("gmail", 1)
	engine, store := newEngine(box, nil, nil)

	response, err := engine.Start("alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(response.Data, "Voice email assistant ready") {
		t.Fatalf("welcome: %q", response.Data)
	}
	if store.Len() != 1 {
		t.Fatalf("got %d sessions, want 1", store.Len())
	}
}
