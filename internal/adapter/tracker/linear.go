package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pmahajan3105/releasenote-sub004/internal/domain/integration"
)

const linearGraphQLURL = "https://api.linear.app/graphql"

const linearIssuesQuery = `query RecentIssues {
  issues(first: 50, orderBy: updatedAt) {
    nodes {
      id
      identifier
      title
      description
      url
      createdAt
      updatedAt
      state { name }
      assignee { name }
      labels { nodes { name } }
    }
  }
}`

type linearResponse struct {
	Data struct {
		Issues struct {
			Nodes []struct {
				ID          string `json:"id"`
				Identifier  string `json:"identifier"`
				Title       string `json:"title"`
				Description string `json:"description"`
				URL         string `json:"url"`
				CreatedAt   string `json:"createdAt"`
				UpdatedAt   string `json:"updatedAt"`
				State       *struct {
					Name string `json:"name"`
				} `json:"state"`
				Assignee *struct {
					Name string `json:"name"`
				} `json:"assignee"`
				Labels struct {
					Nodes []struct {
						Name string `json:"name"`
					} `json:"nodes"`
				} `json:"labels"`
			} `json:"nodes"`
		} `json:"issues"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// fetchLinear queries the GraphQL API for recently updated issues.
func (c *Clients) fetchLinear(ctx context.Context, accessToken string) ([]integration.ChangeItem, error) {
	body, err := json.Marshal(map[string]string{"query": linearIssuesQuery})
	if err != nil {
		return nil, fmt.Errorf("marshal linear query: %w", err)
	}

	var resp linearResponse
	if err := c.doJSON(ctx, "POST", linearGraphQLURL, accessToken, body, &resp); err != nil {
		return nil, fmt.Errorf("linear issues: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("linear api error: %s", resp.Errors[0].Message)
	}

	nodes := resp.Data.Issues.Nodes
	items := make([]integration.ChangeItem, 0, len(nodes))
	for _, node := range nodes {
		var status string
		if node.State != nil {
			status = node.State.Name
		}
		var assignee string
		if node.Assignee != nil {
			assignee = node.Assignee.Name
		}
		var labels []string
		for _, label := range node.Labels.Nodes {
			if label.Name != "" {
				labels = append(labels, label.Name)
			}
		}
		items = append(items, integration.ChangeItem{
			Provider:    integration.ProviderLinear,
			ExternalID:  node.Identifier,
			Type:        integration.ChangeTypeIssue,
			Title:       node.Title,
			Description: node.Description,
			Status:      status,
			URL:         node.URL,
			Assignee:    assignee,
			Labels:      labels,
			CreatedAt:   parseTime(node.CreatedAt, time.RFC3339),
			UpdatedAt:   parseTime(node.UpdatedAt, time.RFC3339),
		})
	}
	return items, nil
}
