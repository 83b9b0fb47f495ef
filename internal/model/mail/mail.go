package mail

import "time"

// Summary is one row of a list/search result set. Index is 1-based and
// only meaningful within the result set that produced it.
type Summary struct {
	Index   int    `json:"index"`
	Account string `json:"account"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date,omitempty"`
	Snippet string `json:"snippet,omitempty"`
	Ref     string `json:"ref"`
}

// Content is the full body of a message the user had read out.
type Content struct {
	Ref     string `json:"ref"`
	Account string `json:"account"`
	From    string `json:"from"`
	Subject string `json:"subject"`
	Date    string `json:"date,omitempty"`
	Body    string `json:"body"`
}

// Draft is an unsent reply awaiting explicit approval.
type Draft struct {
	ID          string    `json:"id"`
	TargetIndex int       `json:"targetIndex"`
	Account     string    `json:"account"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}
