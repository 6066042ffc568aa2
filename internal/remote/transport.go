package remote

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"notesync/internal/entity"
	"notesync/internal/services"
)

const (
	setupPrefix = "_setup("
	setupSuffix = ")}"

	formContentType = "application/x-www-form-urlencoded;charset=utf-8"
	maxBodyBytes    = 32 << 20
)

func (c *Client) get(ctx context.Context, operation, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrProtocol, operation, "build request", "", err)
	}
	c.applyHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, operation, "http get", "", err)
	}
	defer resp.Body.Close()
	body, err := readBody(resp)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, operation, "read response", "", err)
	}
	if err := checkStatus(operation, resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// post sends one batch. responded reports whether the service answered at
// all, which is what decides whether the pending queue was consumed.
func (c *Client) post(ctx context.Context, operation string, actions []entity.Action) (resp entity.BatchResponse, responded bool, err error) {
	payload, err := json.Marshal(entity.BatchRequest{ActionList: actions, ClientVersion: c.clientVersion})
	if err != nil {
		return resp, false, services.Wrap(services.ErrProtocol, operation, "encode batch", "", err)
	}
	form := url.Values{}
	form.Set("r", string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.postURL, strings.NewReader(form.Encode()))
	if err != nil {
		return resp, false, services.Wrap(services.ErrProtocol, operation, "build request", "", err)
	}
	c.applyHeaders(req)
	req.Header.Set("Content-Type", formContentType)
	req.Header.Set("AT", "1")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return resp, false, services.Wrap(services.ErrTransport, operation, "http post", "", err)
	}
	defer httpResp.Body.Close()
	body, err := readBody(httpResp)
	if err != nil {
		return resp, true, services.Wrap(services.ErrTransport, operation, "read response", "", err)
	}
	if err := checkStatus(operation, httpResp.StatusCode, body); err != nil {
		return resp, true, err
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, true, services.Wrap(services.ErrProtocol, operation, "decode response", "", err)
	}
	return resp, true, nil
}

func (c *Client) applyHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Encoding", "gzip, deflate")
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "deflate":
		fl := flate.NewReader(resp.Body)
		defer fl.Close()
		reader = fl
	}
	return io.ReadAll(io.LimitReader(reader, maxBodyBytes))
}

func checkStatus(operation string, status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}
	message := fmt.Sprintf("status %d: %s", status, snippet(body))
	if status == http.StatusTooManyRequests || status >= 500 {
		return services.Wrap(services.ErrTransport, operation, "", message, nil)
	}
	return services.Wrap(services.ErrProtocol, operation, "", message, nil)
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}

// extractSetup finds the JSON handed to _setup( in the page's scripts.
func extractSetup(page []byte) (entity.SetupBlob, error) {
	var blob entity.SetupBlob
	tokenizer := html.NewTokenizer(bytes.NewReader(page))
	inScript := false
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if errors.Is(tokenizer.Err(), io.EOF) {
				return blob, services.Wrap(services.ErrProtocol, "login", "parse setup", "setup blob not found", nil)
			}
			return blob, services.Wrap(services.ErrProtocol, "login", "parse setup", "", tokenizer.Err())
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			inScript = string(name) == "script"
		case html.EndTagToken:
			inScript = false
		case html.TextToken:
			if !inScript {
				continue
			}
			text := string(tokenizer.Text())
			begin := strings.Index(text, setupPrefix)
			end := strings.LastIndex(text, setupSuffix)
			if begin < 0 || end < begin+len(setupPrefix) {
				continue
			}
			if err := json.Unmarshal([]byte(text[begin+len(setupPrefix):end]), &blob); err != nil {
				return blob, services.Wrap(services.ErrProtocol, "login", "parse setup", "", err)
			}
			entity.NormalizeLists(blob.T.Lists)
			return blob, nil
		}
	}
}

// IsRetriable reports whether err is a transient condition that a later
// session can expect to clear.
func IsRetriable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, services.ErrTransport) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
