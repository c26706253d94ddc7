package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// GraphQL posts queries to {base}/graphql.
type GraphQL struct {
	rest *Client
	path string
}

// NewGraphQL wraps a REST client. The endpoint path defaults to "graphql".
func NewGraphQL(rest *Client, path string) *GraphQL {
	if path == "" {
		path = "graphql"
	}
	return &GraphQL{rest: rest, path: path}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage       `json:"data"`
	Errors []GraphQLErrorMessage `json:"errors"`
}

// GraphQLErrorMessage is one entry of a GraphQL "errors" array.
type GraphQLErrorMessage struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// GraphQLError is returned when the response carries a non-empty errors array.
type GraphQLError struct {
	Messages []GraphQLErrorMessage
}

func (e *GraphQLError) Error() string {
	msgs := make([]string, 0, len(e.Messages))
	for _, m := range e.Messages {
		msgs = append(msgs, m.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Query runs query with variables and decodes the "data" member into out.
func (g *GraphQL) Query(ctx context.Context, query string, variables map[string]any, out any) error {
	var resp graphQLResponse
	if err := g.rest.PostJSON(ctx, g.path, graphQLRequest{Query: query, Variables: variables}, &resp); err != nil {
		return err
	}
	if len(resp.Errors) > 0 {
		return &GraphQLError{Messages: resp.Errors}
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		return errors.New("graphql: response has no data")
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("graphql: decoding data: %w", err)
	}
	return nil
}
