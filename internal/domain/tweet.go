package domain

import (
	"regexp"
	"strings"
	"time"
)

// PermalinkBase is prefixed to a tweet ID to build its canonical link.
const PermalinkBase = "https://twitter.com/user/status/"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)

// Author is a resolved streaming-platform account.
type Author struct {
	ID       string
	Username string
	Name     string
}

// Tweet is a single post delivered by the filtered stream.
type Tweet struct {
	ID             string
	Text           string
	AuthorID       string
	AuthorUsername string
	AuthorName     string
}

// Notification is the per-event message forwarded to the relay target.
type Notification struct {
	AuthorName     string
	AuthorUsername string
	Text           string
	URL            string
	Timestamp      time.Time
}

// NewNotification builds the notification for a delivered tweet. The display name falls
// back to the screen name, then to the author ID.
func NewNotification(t Tweet, deliveredAt time.Time) Notification {
	name := t.AuthorName
	if name == "" {
		name = t.AuthorUsername
	}
	if name == "" {
		name = t.AuthorID
	}

	return Notification{
		AuthorName:     name,
		AuthorUsername: t.AuthorUsername,
		Text:           t.Text,
		URL:            Permalink(t.ID),
		Timestamp:      deliveredAt,
	}
}

func Permalink(tweetID string) string {
	return PermalinkBase + tweetID
}

// NormalizeUsername strips a leading @ and surrounding space and lower-cases the name.
// Screen names are case-insensitive on the platform.
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	return strings.ToLower(username)
}

// ValidateUsername checks the platform's screen name syntax.
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return InvalidAuthorError(username)
	}
	return nil
}
