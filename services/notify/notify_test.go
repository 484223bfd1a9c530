package notifysvc

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core"
)

type memLogger struct {
	infos, warns, errors []string
}

func (l *memLogger) Debug(string, ...interface{})       {}
func (l *memLogger) Info(msg string, _ ...interface{})  { l.infos = append(l.infos, msg) }
func (l *memLogger) Warn(msg string, _ ...interface{})  { l.warns = append(l.warns, msg) }
func (l *memLogger) Error(msg string, _ ...interface{}) { l.errors = append(l.errors, msg) }
func (l *memLogger) Fatal(string, ...interface{})       {}

var invalid = core.Notification{
	Level:   core.NotificationError,
	Title:   "Template is invalid",
	Message: "template is invalid",
	Details: []string{"passages[0].ref: ref cannot be blank", "passages[0].questions: a passage needs at least one question"},
}

func TestLogNotifier(t *testing.T) {
	logger := &memLogger{}
	n := NewLogNotifier(logger)

	n.Notify(context.Background(), core.Notification{Level: core.NotificationSuccess, Title: "Template saved", Message: "ok"})
	n.Notify(context.Background(), invalid)

	assert.Equal(t, []string{"[success] Template saved: ok"}, logger.infos)
	assert.Equal(t, []string{
		"[error] Template is invalid: template is invalid " +
			"(passages[0].ref: ref cannot be blank; passages[0].questions: a passage needs at least one question)",
	}, logger.warns)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	_, ok := r.Last()
	assert.False(t, ok)

	for _, title := range []string{"a", "b", "c"} {
		r.Notify(context.Background(), core.Notification{Title: title})
	}
	last, ok := r.Last()
	require.True(t, ok)
	assert.Equal(t, "c", last.Title)
	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].Title)
}

func TestSendgridNotifier(t *testing.T) {
	var (
		gotAuth string
		gotMail map[string]interface{}
		status  = http.StatusAccepted
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &gotMail)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	conf := &core.Config{AppName: "Prepdesk"}
	conf.Notify.SendgridAPIKey = "sg-key"
	conf.Notify.DefaultFromEmail = "noreply@prepdesk.test"
	conf.Notify.Recipients = []string{"editor@prepdesk.test"}

	logger := &memLogger{}
	n := NewSendgridNotifier(conf, logger)
	n.host = srv.URL

	n.Notify(context.Background(), invalid)
	assert.Equal(t, "Bearer sg-key", gotAuth)
	pers := gotMail["personalizations"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "[Prepdesk] Template is invalid", pers["subject"])
	assert.Empty(t, logger.errors)

	status = http.StatusUnauthorized
	n.Notify(context.Background(), invalid)
	assert.Len(t, logger.errors, 1)

	// nobody to tell
	n.recipients = nil
	gotAuth = ""
	n.Notify(context.Background(), invalid)
	assert.Empty(t, gotAuth)
}
