package assetsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/prepdesk/core/template"
	"github.com/trezcool/prepdesk/services/session"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

func stagePNG(t *testing.T, size int) *template.Preview {
	ps, err := template.NewPreviews(t.TempDir())
	require.NoError(t, err)
	data := make([]byte, size)
	copy(data, pngHeader)
	pv, err := ps.Stage(bytes.NewReader(data), "chart.png")
	require.NoError(t, err)
	return pv
}

type assetServer struct {
	*httptest.Server
	hits       int32
	signStatus int
	signBody   string
	upStatus   int
	upBody     string
	fields     map[string]string
	file       []byte
	authHeader []string
}

func newAssetServer(t *testing.T) *assetServer {
	as := &assetServer{signStatus: http.StatusOK, upStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("/templates/sign-upload/pt-1", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&as.hits, 1)
		as.authHeader = append(as.authHeader, r.Header.Get("Authorization"))
		w.WriteHeader(as.signStatus)
		if as.signBody != "" {
			_, _ = io.WriteString(w, as.signBody)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"api_key":         "key",
			"timestamp":       1700000000,
			"signature":       "sig",
			"folder":          "templates/pt-1",
			"upload_url":      as.URL + "/upload",
			"allowed_formats": []string{"png", "jpg"},
		})
	})
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&as.hits, 1)
		as.authHeader = append(as.authHeader, r.Header.Get("Authorization"))
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		as.fields = make(map[string]string)
		for k, v := range r.MultipartForm.Value {
			as.fields[k] = v[0]
		}
		if f, _, err := r.FormFile("file"); err == nil {
			as.file, _ = io.ReadAll(f)
			_ = f.Close()
		}
		w.WriteHeader(as.upStatus)
		if as.upBody != "" {
			_, _ = io.WriteString(w, as.upBody)
			return
		}
		_, _ = io.WriteString(w, `{"secure_url": "https://cdn.test/templates/pt-1/chart.png"}`)
	})
	as.Server = httptest.NewServer(mux)
	t.Cleanup(as.Close)
	return as
}

func newTestUploader(as *assetServer) *Uploader {
	store := session.NewStore("token", nil, as.Client())
	return NewUploader(store, as.URL+"/", template.DefaultMediaLimits, 0)
}

func TestUploader_Upload(t *testing.T) {
	as := newAssetServer(t)
	pv := stagePNG(t, 1024)

	url, err := newTestUploader(as).Upload(context.Background(), "pt-1", template.ContentImage, pv)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/templates/pt-1/chart.png", url)

	assert.EqualValues(t, 2, atomic.LoadInt32(&as.hits))
	assert.Equal(t, []string{"Bearer token", ""}, as.authHeader, "only the ticket request is authenticated")
	assert.Equal(t, map[string]string{
		"api_key":         "key",
		"timestamp":       "1700000000",
		"signature":       "sig",
		"folder":          "templates/pt-1",
		"allowed_formats": "png,jpg",
	}, as.fields)
	assert.Len(t, as.file, 1024)
	assert.True(t, bytes.HasPrefix(as.file, pngHeader))
}

func TestUploader_Upload_errors(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		ct         template.ContentType
		signStatus int
		signBody   string
		upStatus   int
		upBody     string
		wantHits   int32
		check      func(t *testing.T, err error)
	}{
		{
			name:     "too large",
			size:     6 << 20,
			ct:       template.ContentImage,
			wantHits: 0,
			check: func(t *testing.T, err error) {
				assert.IsType(t, &template.MediaError{}, err)
				assert.EqualError(t, err, "IMAGE file rejected: file is larger than 5MB")
			},
		},
		{
			name:     "wrong type",
			size:     512,
			ct:       template.ContentAudio,
			wantHits: 0,
			check: func(t *testing.T, err error) {
				assert.IsType(t, &template.MediaError{}, err)
			},
		},
		{
			name:       "ticket refused",
			size:       512,
			ct:         template.ContentImage,
			signStatus: http.StatusForbidden,
			signBody:   `{"message": "part template is archived"}`,
			wantHits:   1,
			check: func(t *testing.T, err error) {
				rErr, ok := err.(*template.UploadRejectedError)
				require.True(t, ok, "got %T", err)
				assert.Equal(t, http.StatusForbidden, rErr.Status)
				assert.Equal(t, "part template is archived", rErr.Message)
			},
		},
		{
			name:     "upload refused",
			size:     512,
			ct:       template.ContentImage,
			upStatus: http.StatusBadRequest,
			upBody:   `{"error": {"message": "Invalid image file"}}`,
			wantHits: 2,
			check: func(t *testing.T, err error) {
				rErr, ok := err.(*template.UploadRejectedError)
				require.True(t, ok, "got %T", err)
				assert.Equal(t, "Invalid image file", rErr.Message)
			},
		},
		{
			name:     "upload refused without message",
			size:     512,
			ct:       template.ContentImage,
			upStatus: http.StatusInternalServerError,
			upBody:   `oops`,
			wantHits: 2,
			check: func(t *testing.T, err error) {
				assert.EqualError(t, err, "upload rejected (status 500)")
			},
		},
		{
			name:     "no secure url",
			size:     512,
			ct:       template.ContentImage,
			upBody:   `{}`,
			wantHits: 2,
			check: func(t *testing.T, err error) {
				assert.IsType(t, &template.UploadRejectedError{}, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			as := newAssetServer(t)
			if tt.signStatus != 0 {
				as.signStatus = tt.signStatus
			}
			as.signBody = tt.signBody
			if tt.upStatus != 0 {
				as.upStatus = tt.upStatus
			}
			as.upBody = tt.upBody

			_, err := newTestUploader(as).Upload(context.Background(), "pt-1", tt.ct, stagePNG(t, tt.size))
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, tt.wantHits, atomic.LoadInt32(&as.hits))
		})
	}
}

func TestUploader_Upload_network(t *testing.T) {
	as := newAssetServer(t)
	up := newTestUploader(as)
	as.Close()

	_, err := up.Upload(context.Background(), "pt-1", template.ContentImage, stagePNG(t, 512))
	nErr, ok := err.(*template.UploadNetworkError)
	require.True(t, ok, "got %T", err)
	assert.Error(t, nErr.Err)
}

func TestUploader_Upload_released(t *testing.T) {
	as := newAssetServer(t)
	defer as.Close()
	up := newTestUploader(as)

	pv := stagePNG(t, 512)
	require.NoError(t, pv.Release())

	_, err := up.Upload(context.Background(), "pt-1", template.ContentImage, pv)
	assert.ErrorIs(t, err, template.ErrPreviewReleased)
	assert.Zero(t, atomic.LoadInt32(&as.hits), "no ticket is signed for a released file")
}

func Test_remoteMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"error": {"message": "nested"}}`, want: "nested"},
		{body: `{"error": "flat"}`, want: "flat"},
		{body: `{"message": "plain"}`, want: "plain"},
		{body: `{}`, want: ""},
		{body: `not json`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.want, remoteMessage(tt.body))
		})
	}
}
