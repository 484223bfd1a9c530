package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/prepdesk/apps/shared"
	. "github.com/trezcool/prepdesk/apps/api/echo"
	"github.com/trezcool/prepdesk/core"
	"github.com/trezcool/prepdesk/core/template"
	inmemcache "github.com/trezcool/prepdesk/storage/cache/inmem"
	inmemdb "github.com/trezcool/prepdesk/storage/database/inmem"
	testutil "github.com/trezcool/prepdesk/tests"
)

const (
	adminUsername = "admin"
	adminPassword = "correct horse battery staple"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}

	pngHeader = []byte("\x89PNG\r\n\x1a\n")
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

// templateService fakes the sign-upload, asset storage and enqueue-import endpoints.
type templateService struct {
	*httptest.Server

	mu           sync.Mutex
	uploads      int
	imports      []template.ImportRequest
	importStatus int
}

func newTemplateService(t *testing.T) *templateService {
	ts := &templateService{importStatus: http.StatusAccepted}
	mux := http.NewServeMux()
	mux.HandleFunc("/templates/sign-upload/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"api_key":    "key",
			"timestamp":  1700000000,
			"signature":  "sig",
			"folder":     "templates",
			"upload_url": ts.URL + "/upload",
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.uploads++
		n := ts.uploads
		ts.mu.Unlock()
		_, _ = fmt.Fprintf(w, `{"secure_url": "https://cdn.test/templates/%d.png"}`, n)
	})
	mux.HandleFunc("/templates/enqueue-import/", func(w http.ResponseWriter, r *http.Request) {
		var req template.ImportRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		ts.mu.Lock()
		ts.imports = append(ts.imports, req)
		status := ts.importStatus
		ts.mu.Unlock()
		w.WriteHeader(status)
		if status >= http.StatusBadRequest {
			_, _ = io.WriteString(w, `{"message": "part template is locked"}`)
		}
	})
	ts.Server = httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *templateService) requests() []template.ImportRequest {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]template.ImportRequest(nil), ts.imports...)
}

type fixture struct {
	app   Server
	conf  *core.Config
	ts    *templateService
	c     *shared.Container
	token string
}

func setup(t *testing.T) *fixture {
	conf := testutil.Config(t)
	conf.Uploads.StagingDir = t.TempDir()
	conf.Admin.Username = adminUsername
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)
	conf.Admin.PasswordHash = string(hash)

	ts := newTemplateService(t)
	conf.Templates.BaseURL = ts.URL
	conf.Templates.Token = "service-token"

	st := shared.Storage{
		Saves:  inmemdb.NewSaveLogRepository(),
		Drafts: inmemcache.NewDraftRepository(0),
	}
	c, err := shared.NewContainer(conf, nopLogger{}, st)
	require.NoError(t, err)
	t.Cleanup(c.Previews.ReleaseAll)

	app := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         nopLogger{},
		TemplateSvc:    c.TemplateSvc,
		Previews:       c.Previews,
		Notes:          c.Notes,
		Validate:       c.Validate,
		Translator:     c.Translator,
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = app.Close() })

	token, err := GenerateToken(conf, GetAdminClaims(conf, adminUsername))
	require.NoError(t, err)
	return &fixture{app: app, conf: conf, ts: ts, c: c, token: token}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func newFileRequest(path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		fw, _ := w.CreateFormFile("file", filename)
		_, _ = fw.Write(content)
	}
	_ = w.Close()

	req := httptest.NewRequest(http.MethodPut, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

// do serves the request and decodes the JSON answer into out (when not nil).
func (f *fixture) do(t *testing.T, method, path string, body interface{}, wantCode int, out interface{}) {
	t.Helper()
	var data []byte
	if body != nil {
		data = marshalObj(t, body)
	}
	req, rec := newAuthRequest(method, path, f.token, data)
	f.app.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, "body: %s", rec.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
