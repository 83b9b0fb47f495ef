package intent

// Snapshot is the slice of session state the model classifier is shown
// so it can ground its decision without seeing mailbox content.
type Snapshot struct {
	Accounts        []string
	LoadedCount     int
	LastReadFrom    string
	LastReadSubject string
	LastReadAccount string
	HasPendingDraft bool
}
