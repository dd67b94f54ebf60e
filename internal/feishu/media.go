package feishu

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path"

	http "github.com/bogdanfinn/fhttp"
	"github.com/gabriel-vasile/mimetype"

	"github.com/Alfex4936/feishu-outbound/internal/model"
	"github.com/Alfex4936/feishu-outbound/internal/net"
	"github.com/Alfex4936/feishu-outbound/internal/util"
)

const (
	imagesPath = "/open-apis/im/v1/images"
	filesPath  = "/open-apis/im/v1/files"
)

// ErrMediaTooLarge is returned when a download exceeds MaxMediaBytes.
var ErrMediaTooLarge = errors.New("feishu: media exceeds size limit")

// DownloadError is a non-2xx answer from the media host.
type DownloadError struct {
	URL    string
	Status int
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("feishu: download %s: http %d", e.URL, e.Status)
}

// Temporary reports whether the media host may answer later.
func (e *DownloadError) Temporary() bool { return e.Status == 429 || e.Status >= 500 }

// media is a downloaded asset ready for upload.
type media struct {
	name string
	mime *mimetype.MIME
	data []byte
}

// SendMedia downloads mediaURL, uploads it to Feishu and sends it as an
// image, audio or file message depending on its detected type.
func (c *Client) SendMedia(ctx context.Context, to, mediaURL string) (model.SendResult, error) {
	m, err := c.download(ctx, mediaURL)
	if err != nil {
		return model.SendResult{}, err
	}

	if isImage(m.mime) {
		key, err := c.uploadImage(ctx, m)
		if err != nil {
			return model.SendResult{}, err
		}
		content, err := util.ContentString(map[string]string{"image_key": key})
		if err != nil {
			return model.SendResult{}, err
		}
		return c.sendMessage(ctx, to, "image", content)
	}

	fileType := fileTypeOf(m.mime)
	key, err := c.uploadFile(ctx, m, fileType)
	if err != nil {
		return model.SendResult{}, err
	}
	content, err := util.ContentString(map[string]string{"file_key": key})
	if err != nil {
		return model.SendResult{}, err
	}
	msgType := "file"
	if fileType == "opus" {
		msgType = "audio"
	}
	return c.sendMessage(ctx, to, msgType, content)
}

func (c *Client) download(ctx context.Context, rawURL string) (*media, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("feishu: unsupported media url %q", rawURL)
	}

	req, err := net.NewRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, &RequestError{Op: "download media", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &DownloadError{URL: rawURL, Status: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxMediaBytes+1))
	if err != nil {
		return nil, &RequestError{Op: "download media: read body", Err: err}
	}
	if int64(len(data)) > c.maxMediaBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrMediaTooLarge, c.maxMediaBytes)
	}

	mt := mimetype.Detect(data)
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "file" + mt.Extension()
	}
	return &media{name: name, mime: mt, data: data}, nil
}

// imageTypes are the formats the Feishu image endpoint accepts. Other
// images (svg, heic, avif, ...) are uploaded as files.
var imageTypes = []string{
	"image/jpeg", "image/png", "image/webp", "image/gif",
	"image/tiff", "image/bmp", "image/x-icon",
}

func isImage(mt *mimetype.MIME) bool {
	for _, t := range imageTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// fileTypeOf maps a MIME type onto Feishu's upload file_type values.
func fileTypeOf(mt *mimetype.MIME) string {
	switch {
	case mt.Is("application/pdf"):
		return "pdf"
	case mt.Is("video/mp4"):
		return "mp4"
	case mt.Is("audio/ogg"):
		return "opus"
	case mt.Is("application/msword"),
		mt.Is("application/vnd.openxmlformats-officedocument.wordprocessingml.document"):
		return "doc"
	case mt.Is("application/vnd.ms-excel"),
		mt.Is("application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"):
		return "xls"
	case mt.Is("application/vnd.ms-powerpoint"),
		mt.Is("application/vnd.openxmlformats-officedocument.presentationml.presentation"):
		return "ppt"
	}
	return "stream"
}

type imageData struct {
	ImageKey string `json:"image_key"`
}

type fileData struct {
	FileKey string `json:"file_key"`
}

func (c *Client) uploadImage(ctx context.Context, m *media) (string, error) {
	body, contentType, err := multipartBody(map[string]string{"image_type": "message"}, "image", m)
	if err != nil {
		return "", err
	}
	var data imageData
	if err := c.call(ctx, "upload image", http.MethodPost, imagesPath, body, contentType, &data); err != nil {
		return "", err
	}
	return data.ImageKey, nil
}

func (c *Client) uploadFile(ctx context.Context, m *media, fileType string) (string, error) {
	fields := map[string]string{"file_type": fileType, "file_name": m.name}
	body, contentType, err := multipartBody(fields, "file", m)
	if err != nil {
		return "", err
	}
	var data fileData
	if err := c.call(ctx, "upload file", http.MethodPost, filesPath, body, contentType, &data); err != nil {
		return "", err
	}
	return data.FileKey, nil
}

func multipartBody(fields map[string]string, fileField string, m *media) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	fw, err := w.CreateFormFile(fileField, m.name)
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(m.data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
