package notifysvc

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/prepdesk/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// SendgridNotifier emails notifications to the configured recipients.
type SendgridNotifier struct {
	key        string
	host       string
	from       *sgmail.Email
	recipients []string
	subjPrefix string
	logger     core.Logger
}

var _ core.Notifier = (*SendgridNotifier)(nil)

func NewSendgridNotifier(conf *core.Config, logger core.Logger) *SendgridNotifier {
	return &SendgridNotifier{
		key:        conf.Notify.SendgridAPIKey,
		host:       host,
		from:       sgmail.NewEmail(conf.AppName, conf.Notify.DefaultFromEmail),
		recipients: conf.Notify.Recipients,
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

func (n SendgridNotifier) Notify(ctx context.Context, note core.Notification) {
	if len(n.recipients) == 0 {
		return
	}
	req := sendgrid.GetRequest(n.key, endpoint, n.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(n.prepare(note))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		n.logger.Error(fmt.Sprintf("sending notification: %v", err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		n.logger.Error(fmt.Sprintf("sending notification - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}

func (n SendgridNotifier) prepare(note core.Notification) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = n.subjPrefix + note.Title
	for _, to := range n.recipients {
		p.AddTos(sgmail.NewEmail("", to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(n.from)
	m.AddPersonalizations(p)

	text := note.Message
	htmlContent := "<p>" + html.EscapeString(note.Message) + "</p>"
	if len(note.Details) > 0 {
		text += "\n\n- " + strings.Join(note.Details, "\n- ")
		items := make([]string, 0, len(note.Details))
		for _, d := range note.Details {
			items = append(items, "<li>"+html.EscapeString(d)+"</li>")
		}
		htmlContent += "<ul>" + strings.Join(items, "") + "</ul>"
	}
	m.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", htmlContent),
	)
	return m
}
