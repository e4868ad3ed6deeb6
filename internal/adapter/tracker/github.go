package tracker

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

const githubAPIBase = "https://api.github.com"

type githubIssue struct {
	ID       int64  `json:"id"`
	Number   int    `json:"number"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	State    string `json:"state"`
	HTMLURL  string `json:"html_url"`
	Assignee *struct {
		Login string `json:"login"`
	} `json:"assignee"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
	PullRequest *struct {
		URL string `json:"url"`
	} `json:"pull_request"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// fetchGitHub lists issues and pull requests visible to the token across
// the repositories it can access.
func (c *Clients) fetchGitHub(ctx context.Context, accessToken string, since time.Time) ([]integration.ChangeItem, error) {
	query := url.Values{}
	query.Set("filter", "all")
	query.Set("state", "all")
	query.Set("since", since.UTC().Format(time.RFC3339))
	query.Set("per_page", "50")

	var issues []githubIssue
	if err := c.doJSON(ctx, "GET", githubAPIBase+"/issues?"+query.Encode(), accessToken, nil, &issues); err != nil {
		return nil, fmt.Errorf("github issues: %w", err)
	}

	items := make([]integration.ChangeItem, 0, len(issues))
	for _, issue := range issues {
		changeType := integration.ChangeTypeIssue
		if issue.PullRequest != nil {
			changeType = integration.ChangeTypePR
		}
		var labels []string
		for _, label := range issue.Labels {
			if label.Name != "" {
				labels = append(labels, label.Name)
			}
		}
		var assignee string
		if issue.Assignee != nil {
			assignee = issue.Assignee.Login
		}
		items = append(items, integration.ChangeItem{
			Provider:    integration.ProviderGitHub,
			ExternalID:  strconv.FormatInt(issue.ID, 10),
			Type:        changeType,
			Title:       issue.Title,
			Description: issue.Body,
			Status:      issue.State,
			URL:         issue.HTMLURL,
			Assignee:    assignee,
			Labels:      labels,
			CreatedAt:   parseTime(issue.CreatedAt, time.RFC3339),
			UpdatedAt:   parseTime(issue.UpdatedAt, time.RFC3339),
		})
	}
	return items, nil
}
