package mailtool

import (
	"net/mail"
	"regexp"
	"strings"
)

// bodyCap bounds how much of a stripped HTML body is kept; HTML mail
// tends to bury the message under boilerplate.
const bodyCap = 800

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

var entityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&nbsp;", " ",
)

// StripHTML renders HTML mail down to capped plain text: tags removed,
// common entities decoded, whitespace collapsed.
func StripHTML(html string) string {
	if html == "" {
		return ""
	}

	result := html
	for _, tag := range []string{"<br>", "<br/>", "<br />", "</p>", "</div>", "</li>"} {
		result = strings.ReplaceAll(result, tag, "\n")
	}

	result = htmlTagPattern.ReplaceAllString(result, " ")
	result = entityReplacer.Replace(result)
	result = strings.Join(strings.Fields(result), " ")
	result = strings.TrimSpace(result)

	if len(result) > bodyCap {
		result = result[:bodyCap]
	}
	return result
}

// ReplyAddress extracts the bare address from a "Name <addr>" From
// header for use as a reply recipient.
func ReplyAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	if start := strings.Index(from, "<"); start >= 0 {
		if end := strings.Index(from[start:], ">"); end > 0 {
			return from[start+1 : start+end]
		}
	}
	return strings.TrimSpace(from)
}

// ReplySubject prefixes "Re: " without doubling it up.
func ReplySubject(subject string) string {
	if strings.HasPrefix(strings.ToLower(subject), "re:") {
		return subject
	}
	if subject == "" {
		return "Re: your email"
	}
	return "Re: " + subject
}
