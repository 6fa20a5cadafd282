package render

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"time"
)

// RemoteConverter posts the document as a multipart upload to a conversion endpoint.
type RemoteConverter struct {
	url         string
	readTimeout time.Duration
	http        *http.Client
}

// NewRemoteConverter bounds connection setup by connectTimeout. readTimeout bounds the
// wait for response headers and, separately, reading the response body.
func NewRemoteConverter(url string, connectTimeout, readTimeout time.Duration) *RemoteConverter {
	return &RemoteConverter{
		url:         url,
		readTimeout: readTimeout,
		http: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           (&net.Dialer{Timeout: connectTimeout}).DialContext,
				ResponseHeaderTimeout: readTimeout,
			},
		},
	}
}

func (c *RemoteConverter) Name() string { return "remote" }

func (c *RemoteConverter) Convert(ctx context.Context, content []byte) ([]byte, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("files", "document.docx")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if c.readTimeout > 0 {
		timer := time.AfterFunc(c.readTimeout, cancel)
		defer timer.Stop()
	}
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("conversion endpoint returned %d", resp.StatusCode)
	}
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversion response: %w", err)
	}
	return out, nil
}
