package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"jaysonic/codec"
	"jaysonic/future"
	"jaysonic/message"
)

func (c *Client) httpClient() *http.Client {
	return &http.Client{Timeout: c.cfg.Timeout()}
}

func (c *Client) httpURL() string {
	if c.cfg.URL != "" {
		return c.cfg.URL
	}
	return fmt.Sprintf("http://%s:%d%s", c.cfg.Host, c.cfg.Port, c.cfg.Path)
}

func (c *Client) httpMethod() string {
	if c.cfg.Method == "" {
		return "POST"
	}
	return c.cfg.Method
}

func (c *Client) newHTTPRequest(body []byte) (*http.Request, error) {
	req, err := http.NewRequest(c.httpMethod(), c.httpURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// httpSend posts one request and synchronously decodes its response,
// wrapping the result in an already-settled future so callers see the same
// shape Send returns for stream/WS.
func (c *Client) httpSend(method string, params json.RawMessage) (*future.Future[[]byte], error) {
	id := c.allocID()
	frame, err := c.codec.EncodeRequest(method, params, &id)
	if err != nil {
		return nil, err
	}

	req, err := c.newHTTPRequest(frame)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}

	if resp.StatusCode >= 400 {
		return future.Done[[]byte](body, httpErrorFor(resp.StatusCode, body)), nil
	}
	return future.Done[[]byte](body, nil), nil
}

// httpNotify posts a notification; it resolves only on HTTP 204, matching
// spec §4.5 ("resolves if the server replies with status 204; rejects
// otherwise").
func (c *Client) httpNotify(method string, params json.RawMessage) *future.Future[struct{}] {
	frame, err := c.codec.EncodeRequest(method, params, nil)
	if err != nil {
		return future.Done(struct{}{}, err)
	}

	req, err := c.newHTTPRequest(frame)
	if err != nil {
		return future.Done(struct{}{}, err)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return future.Done(struct{}{}, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusNoContent {
		return future.Done(struct{}{}, fmt.Errorf("jaysonic: notify expected 204, got %d", resp.StatusCode))
	}
	return future.Done(struct{}{}, nil)
}

// httpBatch posts a JSON array body and returns the raw response body as
// the batch value, same shape as the stream/WS Batch.
func (c *Client) httpBatch(frames [][]byte) (*future.Future[[]byte], error) {
	elements := make([][]byte, 0, len(frames))
	hadRequest := false
	for _, frame := range frames {
		trimmed := trimDelimiter(frame, c.cfg.Delimiter)
		elements = append(elements, trimmed)
		if msg, err := c.codec.Decode(trimmed); err == nil && msg.Kind == message.KindRequest {
			hadRequest = true
		}
	}

	out, err := codec.EncodeBatch(elements)
	if err != nil {
		return nil, err
	}

	req, err := c.newHTTPRequest(out)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return future.Done[[]byte](nil, nil), nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return future.Done[[]byte](nil, err), nil
	}
	if !hadRequest {
		return future.Done(body, nil), nil
	}
	if resp.StatusCode >= 400 {
		return future.Done(body, httpErrorFor(resp.StatusCode, body)), nil
	}
	return future.Done(body, nil), nil
}

func httpErrorFor(status int, body []byte) error {
	return &httpStatusError{status: status, body: body}
}

type httpStatusError struct {
	status int
	body   []byte
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("jaysonic: http status %d: %s", e.status, e.body)
}
