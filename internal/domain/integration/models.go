package integration

import (
	"strings"
	"time"
)

// Provider identifies a supported issue tracker.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderJira   Provider = "jira"
	ProviderLinear Provider = "linear"
)

// ParseProvider normalizes and validates a provider name from caller input.
func ParseProvider(raw string) (Provider, bool) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderGitHub:
		return ProviderGitHub, true
	case ProviderJira:
		return ProviderJira, true
	case ProviderLinear:
		return ProviderLinear, true
	default:
		return "", false
	}
}

// StateRecord is the persisted anti-forgery state for one authorization redirect.
// It is created before the redirect and consumed exactly once on callback.
type StateRecord struct {
	State        string
	Provider     Provider
	UserID       string
	PKCEVerifier string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// Expired reports whether the record's TTL has elapsed at the given instant.
func (r StateRecord) Expired(now time.Time) bool {
	return !r.ExpiresAt.After(now)
}

// EnvelopeVersion is the only envelope format currently read or written.
const EnvelopeVersion = 1

// Envelope is the versioned at-rest container for encrypted credentials.
// IV, Data, and Tag are hex encoded; all fields must be present for the
// envelope to be decryptable.
type Envelope struct {
	V    int    `json:"v"`
	IV   string `json:"iv"`
	Data string `json:"data"`
	Tag  string `json:"tag"`
}

// Integration is one org's connection to a tracker, credentials encrypted.
type Integration struct {
	ID          int64
	OrgID       int64
	Provider    Provider
	Credentials Envelope
	ConnectedBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ChangeType classifies a canonical change item.
type ChangeType string

const (
	ChangeTypeIssue  ChangeType = "issue"
	ChangeTypePR     ChangeType = "pr"
	ChangeTypeCommit ChangeType = "commit"
)

// ChangeItem is the provider-neutral shape for an issue, pull request, or
// commit fetched from a tracker.
type ChangeItem struct {
	Provider    Provider
	ExternalID  string
	Type        ChangeType
	Title       string
	Description string
	Status      string
	URL         string
	Assignee    string
	Labels      []string
	CreatedAt   *time.Time
	UpdatedAt   *time.Time
	Raw         map[string]any
}

// TicketCacheRow is the persisted form of a ChangeItem, keyed by
// (org, provider, ticket id). Type, labels, and the raw payload are folded
// into Metadata so the table schema stays narrow.
type TicketCacheRow struct {
	OrgID           int64
	IntegrationType Provider
	TicketID        string
	Title           string
	Description     string
	Status          string
	Assignee        string
	URL             string
	Metadata        []byte
	CachedAt        time.Time
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
}
