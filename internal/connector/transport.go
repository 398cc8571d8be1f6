package connector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"catalog-sync/internal/errs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// errNotModified is internal: callers turn it into a business answer.
var errNotModified = errors.New("not modified")

// transport is the HTTP plumbing shared by HTTP suppliers and channels.
type transport struct {
	client *http.Client
}

func newTransport(client *http.Client) transport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return transport{client: client}
}

type call struct {
	connector string
	op        string
	ref       string
	method    string
	url       string
	token     string
	body      any
}

// do sends c and decodes a JSON answer into out (may be nil).
// Failures come back as *errs.ConnectorError classified by status.
func (t transport) do(ctx context.Context, c call, out any) error {
	var body io.Reader
	if c.body != nil {
		data, err := json.Marshal(c.body)
		if err != nil {
			return errs.NewConnectorError(c.connector, c.op, c.ref, errs.ErrRejected, fmt.Errorf("encode payload: %w", err))
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, c.url, body)
	if err != nil {
		return errs.NewConnectorError(c.connector, c.op, c.ref, errs.ErrRejected, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return errs.NewConnectorError(c.connector, c.op, c.ref, errs.ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return errNotModified
	}
	if kind := classifyStatus(resp.StatusCode); kind != nil {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errs.NewConnectorError(c.connector, c.op, c.ref, kind,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return errs.NewConnectorError(c.connector, c.op, c.ref, errs.ErrRejected, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests:
		return errs.ErrRateLimited
	case code >= 500:
		return errs.ErrUnreachable
	case code >= 400:
		return errs.ErrRejected
	}
	return nil
}

func joinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + "/" + strings.Join(parts, "/")
}
