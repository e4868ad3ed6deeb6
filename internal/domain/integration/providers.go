package integration

// ProviderSettings is everything needed to run one provider's
// authorization-code flow: the static endpoint shape plus the deployment's
// client registration.
type ProviderSettings struct {
	Provider     Provider
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthorizeURL string
	TokenURL     string
	Scopes       []string
	UsesPKCE     bool
	// ExtraAuthParams are provider-specific authorize query parameters
	// (e.g. Atlassian's audience/prompt).
	ExtraAuthParams map[string]string
}

// Endpoints is the fixed flow shape for one provider.
type Endpoints struct {
	AuthorizeURL    string
	TokenURL        string
	Scopes          []string
	UsesPKCE        bool
	ExtraAuthParams map[string]string
}

// DefaultEndpoints returns the flow shape for the three supported trackers.
// Exactly these providers are supported, one flow shape each.
func DefaultEndpoints(p Provider) (Endpoints, bool) {
	switch p {
	case ProviderGitHub:
		return Endpoints{
			AuthorizeURL: "https://github.com/login/oauth/authorize",
			TokenURL:     "https://github.com/login/oauth/access_token",
			Scopes:       []string{"repo", "read:org"},
			UsesPKCE:     false,
		}, true
	case ProviderJira:
		return Endpoints{
			AuthorizeURL: "https://auth.atlassian.com/authorize",
			TokenURL:     "https://auth.atlassian.com/oauth/token",
			Scopes:       []string{"read:jira-work", "read:jira-user", "offline_access"},
			UsesPKCE:     true,
			ExtraAuthParams: map[string]string{
				"audience": "api.atlassian.com",
				"prompt":   "consent",
			},
		}, true
	case ProviderLinear:
		return Endpoints{
			AuthorizeURL: "https://linear.app/oauth/authorize",
			TokenURL:     "https://api.linear.app/oauth/token",
			Scopes:       []string{"read"},
			UsesPKCE:     true,
		}, true
	default:
		return Endpoints{}, false
	}
}
