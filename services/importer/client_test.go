package importsvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core/template"
	"github.com/trezcool/prepdesk/services/session"
)

func TestClient_EnqueueImport(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody map[string]interface{}
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotBody)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(session.NewStore("token", nil, srv.Client()), srv.URL, 0)
	req := template.ImportRequest{
		Name:   "Week 1",
		Status: "DRAFT",
		Content: template.Content{
			Passages:  []template.PassagePayload{{Ref: "a", Type: template.ContentText, Content: "x"}},
			Questions: []template.QuestionPayload{{Content: "q", Part: template.PartTalks, PassageRef: "a"}},
		},
	}
	require.NoError(t, client.EnqueueImport(context.Background(), "pt-1", req))

	assert.Equal(t, "/templates/enqueue-import/pt-1", gotPath)
	assert.Equal(t, "Bearer token", gotAuth)
	assert.Equal(t, "Week 1", gotBody["name"])
	content := gotBody["content"].(map[string]interface{})
	assert.Len(t, content["passages"], 1)
	assert.Len(t, content["questions"], 1)
}

func TestClient_EnqueueImport_rejected(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "message", status: http.StatusBadRequest, body: `{"message": "duplicate ref"}`, wantMsg: "duplicate ref"},
		{name: "error", status: http.StatusConflict, body: `{"error": "import already queued"}`, wantMsg: "import already queued"},
		{name: "nested error", status: http.StatusBadRequest, body: `{"error": {"message": "bad part"}}`, wantMsg: "bad part"},
		{name: "detail", status: http.StatusNotFound, body: `{"detail": "Not found."}`, wantMsg: "Not found."},
		{name: "empty body", status: http.StatusInternalServerError, wantMsg: "failed to import template"},
		{name: "html body", status: http.StatusBadGateway, body: `<html>bad gateway</html>`, wantMsg: "failed to import template"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			client := NewClient(session.NewStore("token", nil, srv.Client()), srv.URL, 0)
			err := client.EnqueueImport(context.Background(), "pt-1", template.ImportRequest{})

			rErr, ok := err.(*template.SubmissionRejectedError)
			require.True(t, ok, "got %T", err)
			assert.Equal(t, tt.status, rErr.Status)
			assert.Equal(t, tt.wantMsg, rErr.Error())
		})
	}
}

func TestClient_EnqueueImport_network(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	client := NewClient(session.NewStore("token", nil, srv.Client()), srv.URL, 0)
	srv.Close()

	err := client.EnqueueImport(context.Background(), "pt-1", template.ImportRequest{})
	assert.IsType(t, &template.SubmissionNetworkError{}, err)
}
