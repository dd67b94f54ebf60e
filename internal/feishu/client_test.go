package feishu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fhttp "github.com/bogdanfinn/fhttp"
	"github.com/stretchr/testify/assert"
	"github.com/gabriel-vasile/mimetype"
	"github.com/stretchr/testify/require"

	"github.com/Alfex4936/feishu-outbound/internal/parse"
	"github.com/Alfex4936/feishu-outbound/internal/util"
)

// handlerDoer serves fhttp requests from an in-process net/http handler.
type handlerDoer struct{ h http.Handler }

func (d handlerDoer) Do(req *fhttp.Request) (*fhttp.Response, error) {
	var body io.Reader = http.NoBody
	if req.Body != nil {
		body = req.Body
	}
	r := httptest.NewRequest(req.Method, req.URL.String(), body)
	for k, v := range req.Header {
		r.Header[k] = v
	}
	rec := httptest.NewRecorder()
	d.h.ServeHTTP(rec, r)
	res := rec.Result()
	return &fhttp.Response{
		StatusCode: res.StatusCode,
		Header:     fhttp.Header(res.Header),
		Body:       res.Body,
		Request:    req,
	}, nil
}

type errDoer struct{ err error }

func (d errDoer) Do(*fhttp.Request) (*fhttp.Response, error) { return nil, d.err }

// fakeFeishu records what the client sent.
type fakeFeishu struct {
	mu          sync.Mutex
	tokenCalls  int
	messages    []sentMessage
	uploads     []string // "image" or file_type
	failNextMsg *parse.Envelope
	gatewayNext int      // answer the next message with this status and an HTML body
	uuids       []string // uuid of every message POST, including failed ones
	media       map[string][]byte
}

type sentMessage struct {
	IDType string
	Auth   string
	Body   sendMessageRequest
}

func newFake() *fakeFeishu {
	return &fakeFeishu{media: map[string][]byte{}}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeFeishu) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.URL.Path {
	case tokenPath:
		f.tokenCalls++
		var req tokenRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.AppSecret != "secret" {
			writeJSON(w, 200, map[string]any{"code": 10014, "msg": "app secret invalid"})
			return
		}
		writeJSON(w, 200, map[string]any{"code": 0, "msg": "ok",
			"tenant_access_token": fmt.Sprintf("t-%d", f.tokenCalls), "expire": 7200})
	case messagesPath:
		var body sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.uuids = append(f.uuids, body.UUID)
		if f.gatewayNext != 0 {
			status := f.gatewayNext
			f.gatewayNext = 0
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(status)
			fmt.Fprintf(w, "<html>%d Service Temporarily Unavailable</html>", status)
			return
		}
		if f.failNextMsg != nil {
			env := f.failNextMsg
			f.failNextMsg = nil
			writeJSON(w, 400, env)
			return
		}
		f.messages = append(f.messages, sentMessage{
			IDType: r.URL.Query().Get("receive_id_type"),
			Auth:   r.Header.Get("Authorization"),
			Body:   body,
		})
		writeJSON(w, 200, map[string]any{"code": 0, "msg": "success", "data": map[string]string{
			"message_id": fmt.Sprintf("om_%d", len(f.messages)), "chat_id": "oc_chat"}})
	case imagesPath:
		if err := r.ParseMultipartForm(1 << 20); err != nil || r.FormValue("image_type") != "message" {
			writeJSON(w, 400, map[string]any{"code": 234001, "msg": "bad image"})
			return
		}
		f.uploads = append(f.uploads, "image")
		writeJSON(w, 200, map[string]any{"code": 0, "data": map[string]string{"image_key": "img_1"}})
	case filesPath:
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeJSON(w, 400, map[string]any{"code": 234001, "msg": "bad file"})
			return
		}
		f.uploads = append(f.uploads, r.FormValue("file_type")+":"+r.FormValue("file_name"))
		writeJSON(w, 200, map[string]any{"code": 0, "data": map[string]string{"file_key": "file_1"}})
	default:
		data, ok := f.media[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}
}

func newTestClient(t *testing.T, fake *fakeFeishu, opts Options) *Client {
	t.Helper()
	opts.Doer = handlerDoer{h: fake}
	if opts.NewUUID == nil {
		n := 0
		opts.NewUUID = func() string { n++; return fmt.Sprintf("uuid-%d", n) }
	}
	c, err := New("cli_app", "secret", opts)
	require.NoError(t, err)
	return c
}

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New("", "secret", Options{})
	assert.ErrorIs(t, err, ErrCredentials)
	_, err = New("app", "", Options{})
	assert.ErrorIs(t, err, ErrCredentials)
}

func TestSendText_ReusesToken(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, Options{})

	res, err := c.SendText(context.Background(), "oc_abc", "hello <b>&</b>")
	require.NoError(t, err)
	assert.Equal(t, "feishu", res.Channel)
	assert.Equal(t, "om_1", res.MessageID)
	assert.Equal(t, "oc_chat", res.ChatID)

	_, err = c.SendText(context.Background(), "ou_user", "second")
	require.NoError(t, err)

	assert.Equal(t, 1, fake.tokenCalls)
	require.Len(t, fake.messages, 2)

	first := fake.messages[0]
	assert.Equal(t, "chat_id", first.IDType)
	assert.Equal(t, "Bearer t-1", first.Auth)
	assert.Equal(t, "oc_abc", first.Body.ReceiveID)
	assert.Equal(t, "text", first.Body.MsgType)
	assert.Equal(t, `{"text":"hello <b>&</b>"}`, first.Body.Content)
	assert.Equal(t, "uuid-1", first.Body.UUID)

	assert.Equal(t, "open_id", fake.messages[1].IDType)
	assert.Equal(t, "uuid-2", fake.messages[1].Body.UUID)
}

func TestTenantToken_RefreshesBeforeExpiry(t *testing.T) {
	fake := newFake()
	now := time.Unix(1700000000, 0)
	c := newTestClient(t, fake, Options{Now: func() time.Time { return now }})

	_, err := c.SendText(context.Background(), "oc_a", "one")
	require.NoError(t, err)

	now = now.Add(2 * time.Hour) // inside the 5 minute slack of a 7200s token
	_, err = c.SendText(context.Background(), "oc_a", "two")
	require.NoError(t, err)

	assert.Equal(t, 2, fake.tokenCalls)
	assert.Equal(t, "Bearer t-2", fake.messages[1].Auth)
}

func TestTenantToken_BadSecret(t *testing.T) {
	fake := newFake()
	c, err := New("cli_app", "wrong", Options{Doer: handlerDoer{h: fake}})
	require.NoError(t, err)

	_, err = c.SendText(context.Background(), "oc_a", "x")
	var apiErr *parse.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 10014, apiErr.Code)
	assert.False(t, apiErr.Temporary())
	assert.Empty(t, fake.messages)
}

func TestSendText_InvalidTokenDropsCache(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, Options{})
	fake.failNextMsg = &parse.Envelope{Code: 99991663, Msg: "invalid access token"}

	_, err := c.SendText(context.Background(), "oc_a", "x")
	var apiErr *parse.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.Temporary())

	_, err = c.SendText(context.Background(), "oc_a", "x")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.tokenCalls)
}

func TestSendText_GatewayErrorIsTemporary(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, Options{})
	fake.gatewayNext = 503

	_, err := c.SendText(context.Background(), "oc_a", "x")
	var apiErr *parse.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 503, apiErr.Status)
	assert.True(t, apiErr.Temporary())
	assert.Contains(t, err.Error(), "Service Temporarily Unavailable")

	_, err = c.SendText(context.Background(), "oc_a", "x")
	require.NoError(t, err)
	assert.Equal(t, 1, fake.tokenCalls)
}

func TestSendText_UsesIdempotencyKeyFromContext(t *testing.T) {
	fake := newFake()
	c := newTestClient(t, fake, Options{})
	ctx := util.WithIdempotencyKey(context.Background(), "chunk-key")

	fake.gatewayNext = 502
	_, err := c.SendText(ctx, "oc_a", "x")
	require.Error(t, err)
	_, err = c.SendText(ctx, "oc_a", "x")
	require.NoError(t, err)
	_, err = c.SendText(context.Background(), "oc_a", "y")
	require.NoError(t, err)

	assert.Equal(t, []string{"chunk-key", "chunk-key", "uuid-1"}, fake.uuids)
	require.Len(t, fake.messages, 2)
}

// gateDoer holds token requests until release is closed or the request
// ctx ends; everything else goes to next.
type gateDoer struct {
	next    handlerDoer
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (d *gateDoer) Do(req *fhttp.Request) (*fhttp.Response, error) {
	if req.URL.Path == tokenPath {
		d.once.Do(func() { close(d.entered) })
		select {
		case <-d.release:
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}
	return d.next.Do(req)
}

func TestTenantToken_SlowFetchDoesNotBlockOtherCallers(t *testing.T) {
	fake := newFake()
	gate := &gateDoer{next: handlerDoer{h: fake}, entered: make(chan struct{}), release: make(chan struct{})}
	c, err := New("cli_app", "secret", Options{Doer: gate})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := c.SendText(context.Background(), "oc_a", "first")
		done <- err
	}()
	<-gate.entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = c.SendText(ctx, "oc_a", "second")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)

	close(gate.release)
	require.NoError(t, <-done)
	require.Len(t, fake.messages, 1)
	assert.Equal(t, `{"text":"first"}`, fake.messages[0].Body.Content)
}

func TestSendText_EmptyReceiver(t *testing.T) {
	c := newTestClient(t, newFake(), Options{})
	_, err := c.SendText(context.Background(), "feishu:", "x")
	assert.ErrorIs(t, err, ErrNoReceiver)
}

func TestSendText_TransportError(t *testing.T) {
	c, err := New("cli_app", "secret", Options{Doer: errDoer{err: errors.New("connection reset")}})
	require.NoError(t, err)

	_, err = c.SendText(context.Background(), "oc_a", "x")
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.True(t, reqErr.Temporary())

	canceled := &RequestError{Op: "send", Err: context.Canceled}
	assert.False(t, canceled.Temporary())
}

func TestSendMedia_Image(t *testing.T) {
	fake := newFake()
	fake.media["/cat.png"] = pngBytes
	c := newTestClient(t, fake, Options{})

	res, err := c.SendMedia(context.Background(), "oc_a", "https://cdn.example.com/cat.png")
	require.NoError(t, err)
	assert.Equal(t, "om_1", res.MessageID)

	assert.Equal(t, []string{"image"}, fake.uploads)
	require.Len(t, fake.messages, 1)
	assert.Equal(t, "image", fake.messages[0].Body.MsgType)
	assert.Equal(t, `{"image_key":"img_1"}`, fake.messages[0].Body.Content)
}

func TestSendMedia_PDF(t *testing.T) {
	fake := newFake()
	fake.media["/docs/report.pdf"] = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF")
	c := newTestClient(t, fake, Options{})

	_, err := c.SendMedia(context.Background(), "chat_id:oc_a", "https://files.example.com/docs/report.pdf")
	require.NoError(t, err)

	assert.Equal(t, []string{"pdf:report.pdf"}, fake.uploads)
	assert.Equal(t, "file", fake.messages[0].Body.MsgType)
	assert.Equal(t, `{"file_key":"file_1"}`, fake.messages[0].Body.Content)
}

func TestSendMedia_UnknownTypeIsStream(t *testing.T) {
	fake := newFake()
	fake.media["/notes.txt"] = []byte("just some notes")
	c := newTestClient(t, fake, Options{})

	_, err := c.SendMedia(context.Background(), "oc_a", "https://files.example.com/notes.txt")
	require.NoError(t, err)
	assert.Equal(t, []string{"stream:notes.txt"}, fake.uploads)
}

func TestSendMedia_UnsupportedImageIsFile(t *testing.T) {
	fake := newFake()
	fake.media["/photo.avif"] = []byte("\x00\x00\x00\x1cftypavif\x00\x00\x00\x00avifmif1miaf")
	c := newTestClient(t, fake, Options{})

	_, err := c.SendMedia(context.Background(), "oc_a", "https://cdn.example.com/photo.avif")
	require.NoError(t, err)
	assert.Equal(t, []string{"stream:photo.avif"}, fake.uploads)
	assert.Equal(t, "file", fake.messages[0].Body.MsgType)
}

func TestIsImage(t *testing.T) {
	tests := []struct {
		mime string
		want bool
	}{
		{"image/jpeg", true},
		{"image/png", true},
		{"image/webp", true},
		{"image/gif", true},
		{"image/tiff", true},
		{"image/bmp", true},
		{"image/x-icon", true},
		{"image/svg+xml", false},
		{"image/heic", false},
		{"image/avif", false},
		{"application/pdf", false},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			mt := mimetype.Lookup(tt.mime)
			require.NotNil(t, mt)
			assert.Equal(t, tt.want, isImage(mt))
		})
	}
}

func TestSendMedia_DownloadFailures(t *testing.T) {
	fake := newFake()
	fake.media["/big.bin"] = []byte(strings.Repeat("x", 64))
	c := newTestClient(t, fake, Options{MaxMediaBytes: 32})

	_, err := c.SendMedia(context.Background(), "oc_a", "https://cdn.example.com/missing.png")
	var dlErr *DownloadError
	require.ErrorAs(t, err, &dlErr)
	assert.Equal(t, 404, dlErr.Status)
	assert.False(t, dlErr.Temporary())

	_, err = c.SendMedia(context.Background(), "oc_a", "https://cdn.example.com/big.bin")
	assert.ErrorIs(t, err, ErrMediaTooLarge)

	_, err = c.SendMedia(context.Background(), "oc_a", "file:///etc/passwd")
	assert.Error(t, err)

	assert.Empty(t, fake.uploads)
	assert.Empty(t, fake.messages)
}

func TestResolveReceiver(t *testing.T) {
	tests := []struct {
		to, wantID, wantType string
	}{
		{"oc_123", "oc_123", "chat_id"},
		{"ou_123", "ou_123", "open_id"},
		{"on_123", "on_123", "union_id"},
		{"someone@example.com", "someone@example.com", "email"},
		{"user_id:42", "42", "user_id"},
		{"chat_id:custom", "custom", "chat_id"},
		{"feishu:oc_9", "oc_9", "chat_id"},
		{" 8ab2 ", "8ab2", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.to, func(t *testing.T) {
			id, typ := resolveReceiver(tt.to, "fallback")
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantType, typ)
		})
	}
}
