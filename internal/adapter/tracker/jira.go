package tracker

import (
	"context"
	"fmt"
	"net/url"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

const (
	jiraResourcesURL = "https://api.atlassian.com/oauth/token/accessible-resources"
	jiraAPIBase      = "https://api.atlassian.com/ex/jira"
	jiraTimeLayout   = "2006-01-02T15:04:05.000-0700"
)

type jiraResource struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type jiraSearchResponse struct {
	Issues []struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description any    `json:"description"`
			Status      *struct {
				Name string `json:"name"`
			} `json:"status"`
			Assignee *struct {
				DisplayName string `json:"displayName"`
			} `json:"assignee"`
			Labels  []string `json:"labels"`
			Created string   `json:"created"`
			Updated string   `json:"updated"`
		} `json:"fields"`
	} `json:"issues"`
}

// fetchJira resolves the token's first accessible site, then searches for
// recently updated issues on it.
func (c *Clients) fetchJira(ctx context.Context, accessToken string) ([]integration.ChangeItem, error) {
	var resources []jiraResource
	if err := c.doJSON(ctx, "GET", jiraResourcesURL, accessToken, nil, &resources); err != nil {
		return nil, fmt.Errorf("jira accessible resources: %w", err)
	}
	if len(resources) == 0 {
		return nil, fmt.Errorf("jira token has no accessible sites")
	}
	site := resources[0]

	query := url.Values{}
	query.Set("jql", "updated >= -30d ORDER BY updated DESC")
	query.Set("maxResults", "50")
	query.Set("fields", "summary,description,status,assignee,labels,created,updated")

	var search jiraSearchResponse
	searchURL := fmt.Sprintf("%s/%s/rest/api/3/search?%s", jiraAPIBase, site.ID, query.Encode())
	if err := c.doJSON(ctx, "GET", searchURL, accessToken, nil, &search); err != nil {
		return nil, fmt.Errorf("jira search: %w", err)
	}

	items := make([]integration.ChangeItem, 0, len(search.Issues))
	for _, issue := range search.Issues {
		var status string
		if issue.Fields.Status != nil {
			status = issue.Fields.Status.Name
		}
		var assignee string
		if issue.Fields.Assignee != nil {
			assignee = issue.Fields.Assignee.DisplayName
		}
		items = append(items, integration.ChangeItem{
			Provider:    integration.ProviderJira,
			ExternalID:  issue.Key,
			Type:        integration.ChangeTypeIssue,
			Title:       issue.Fields.Summary,
			Description: flattenJiraDescription(issue.Fields.Description),
			Status:      status,
			URL:         site.URL + "/browse/" + issue.Key,
			Assignee:    assignee,
			Labels:      issue.Fields.Labels,
			CreatedAt:   parseTime(issue.Fields.Created, jiraTimeLayout),
			UpdatedAt:   parseTime(issue.Fields.Updated, jiraTimeLayout),
		})
	}
	return items, nil
}

// flattenJiraDescription extracts plain text from Atlassian Document Format
// payloads; plain-string descriptions pass through unchanged.
func flattenJiraDescription(desc any) string {
	switch v := desc.(type) {
	case string:
		return v
	case map[string]any:
		return flattenADFNode(v)
	default:
		return ""
	}
}

func flattenADFNode(node map[string]any) string {
	if text, ok := node["text"].(string); ok {
		return text
	}
	content, ok := node["content"].([]any)
	if !ok {
		return ""
	}
	var out string
	for _, child := range content {
		childMap, ok := child.(map[string]any)
		if !ok {
			continue
		}
		if part := flattenADFNode(childMap); part != "" {
			if out != "" {
				out += " "
			}
			out += part
		}
	}
	return out
}
