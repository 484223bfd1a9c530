// Package importsvc submits assembled part templates to the import endpoint.
package importsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/prepdesk/core/template"
)

const defaultRejection = "failed to import template"

// Sender sends authenticated requests; *session.Store implements it.
type Sender interface {
	Send(ctx context.Context, req rest.Request) (*rest.Response, error)
}

type Client struct {
	sender  Sender
	baseURL string
	timeout time.Duration
}

var _ template.Importer = (*Client)(nil)

func NewClient(sender Sender, baseURL string, timeout time.Duration) *Client {
	return &Client{sender: sender, baseURL: strings.TrimRight(baseURL, "/"), timeout: timeout}
}

// EnqueueImport posts the request to the import queue of the part template.
func (c *Client) EnqueueImport(ctx context.Context, partTemplateID string, req template.ImportRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errors.Wrap(err, "encoding import request")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.sender.Send(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: fmt.Sprintf("%s/templates/enqueue-import/%s", c.baseURL, partTemplateID),
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    body,
	})
	if err != nil {
		return &template.SubmissionNetworkError{Err: err}
	}
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return &template.SubmissionRejectedError{Status: res.StatusCode, Message: rejection(res.Body)}
	}
	return nil
}

// rejection picks the message of an error body from its "message", "error" or "detail" field.
func rejection(body string) string {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return defaultRejection
	}
	for _, key := range []string{"message", "error", "detail"} {
		switch v := out[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]interface{}:
			if msg, ok := v["message"].(string); ok && msg != "" {
				return msg
			}
		}
	}
	return defaultRejection
}
