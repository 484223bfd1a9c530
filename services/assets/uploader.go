// Package assetsvc uploads staged passage media through signed-upload tickets.
package assetsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"

	"github.com/trezcool/prepdesk/core/template"
)

// Sender sends authenticated and anonymous requests; *session.Store implements it.
type Sender interface {
	Send(ctx context.Context, req rest.Request) (*rest.Response, error)
	SendAnonymous(ctx context.Context, req rest.Request) (*rest.Response, error)
}

// Ticket is a short-lived authorization to upload one file straight to the asset storage.
type Ticket struct {
	APIKey         string     `json:"api_key"`
	Timestamp      flexString `json:"timestamp"`
	Signature      string     `json:"signature"`
	Folder         string     `json:"folder"`
	UploadURL      string     `json:"upload_url"`
	AllowedFormats flexString `json:"allowed_formats"`
}

type Uploader struct {
	sender  Sender
	baseURL string
	limits  template.MediaLimits
	timeout time.Duration
}

var _ template.Uploader = (*Uploader)(nil)

func NewUploader(sender Sender, baseURL string, limits template.MediaLimits, timeout time.Duration) *Uploader {
	return &Uploader{
		sender:  sender,
		baseURL: strings.TrimRight(baseURL, "/"),
		limits:  limits,
		timeout: timeout,
	}
}

// Upload checks the staged file, obtains a ticket for the part template and uploads the file with it.
// It returns the secure URL of the stored file.
func (u *Uploader) Upload(ctx context.Context, partTemplateID string, ct template.ContentType, pv *template.Preview) (string, error) {
	if err := template.CheckMedia(ct, pv.MIMEType, pv.Size, u.limits); err != nil {
		return "", err
	}
	if pv.Released() {
		return "", template.ErrPreviewReleased
	}
	if u.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.timeout)
		defer cancel()
	}

	ticket, err := u.Sign(ctx, partTemplateID)
	if err != nil {
		return "", err
	}

	body, contentType, err := uploadBody(ticket, pv)
	if err != nil {
		return "", err
	}
	res, err := u.sender.SendAnonymous(ctx, rest.Request{
		Method:  rest.Post,
		BaseURL: ticket.UploadURL,
		Headers: map[string]string{"Content-Type": contentType},
		Body:    body,
	})
	if err != nil {
		return "", &template.UploadNetworkError{Err: err}
	}
	if !success(res.StatusCode) {
		return "", &template.UploadRejectedError{Status: res.StatusCode, Message: remoteMessage(res.Body)}
	}

	var out struct {
		SecureURL string `json:"secure_url"`
	}
	if err := json.Unmarshal([]byte(res.Body), &out); err != nil || out.SecureURL == "" {
		return "", &template.UploadRejectedError{Status: res.StatusCode, Message: "upload response has no secure_url"}
	}
	return out.SecureURL, nil
}

// Sign requests an upload ticket for the part template.
func (u *Uploader) Sign(ctx context.Context, partTemplateID string) (Ticket, error) {
	res, err := u.sender.Send(ctx, rest.Request{
		Method:  rest.Get,
		BaseURL: fmt.Sprintf("%s/templates/sign-upload/%s", u.baseURL, partTemplateID),
	})
	if err != nil {
		return Ticket{}, &template.UploadNetworkError{Err: errors.Wrap(err, "signing upload")}
	}
	if !success(res.StatusCode) {
		return Ticket{}, &template.UploadRejectedError{Status: res.StatusCode, Message: remoteMessage(res.Body)}
	}

	var ticket Ticket
	if err := json.Unmarshal([]byte(res.Body), &ticket); err != nil {
		return Ticket{}, &template.UploadRejectedError{Status: res.StatusCode, Message: "malformed upload ticket"}
	}
	if ticket.UploadURL == "" {
		return Ticket{}, &template.UploadRejectedError{Status: res.StatusCode, Message: "upload ticket has no upload_url"}
	}
	return ticket, nil
}

func uploadBody(ticket Ticket, pv *template.Preview) ([]byte, string, error) {
	f, err := pv.Open()
	if err != nil {
		return nil, "", errors.Wrap(err, "opening staged file")
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", pv.Filename)
	if err != nil {
		return nil, "", errors.Wrap(err, "creating file part")
	}
	if _, err = io.Copy(fw, f); err != nil {
		return nil, "", errors.Wrap(err, "copying staged file")
	}

	fields := [][2]string{
		{"api_key", ticket.APIKey},
		{"timestamp", string(ticket.Timestamp)},
		{"signature", ticket.Signature},
		{"folder", ticket.Folder},
	}
	if ticket.AllowedFormats != "" {
		fields = append(fields, [2]string{"allowed_formats", string(ticket.AllowedFormats)})
	}
	for _, fld := range fields {
		if err = w.WriteField(fld[0], fld[1]); err != nil {
			return nil, "", errors.Wrapf(err, "writing %s field", fld[0])
		}
	}
	if err = w.Close(); err != nil {
		return nil, "", errors.Wrap(err, "closing multipart body")
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func success(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

// remoteMessage extracts the message of an error body: {"error": {"message": ...}}, {"error": ...} or
// {"message": ...}.
func remoteMessage(body string) string {
	var out struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return ""
	}
	if len(out.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(out.Error, &nested); err == nil && nested.Message != "" {
			return nested.Message
		}
		var s string
		if err := json.Unmarshal(out.Error, &s); err == nil && s != "" {
			return s
		}
	}
	return out.Message
}

// flexString decodes a JSON string, number or list of strings (joined with commas).
type flexString string

func (fs *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*fs = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*fs = flexString(s)
	case len(data) > 0 && data[0] == '[':
		var list []string
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		*fs = flexString(strings.Join(list, ","))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		if i, err := n.Int64(); err == nil {
			*fs = flexString(strconv.FormatInt(i, 10))
		} else {
			*fs = flexString(n.String())
		}
	}
	return nil
}
