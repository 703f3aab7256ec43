package httpbus

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/taurusgroup/secagg/internal/phase"
	"github.com/taurusgroup/secagg/pkg/party"
	"github.com/taurusgroup/secagg/pkg/transport"
)

// Client implements transport.Dealer and transport.Subscriber against a
// Server.
type Client struct {
	id         party.ID
	unicastURL string
	publishURL string
	http       *http.Client

	mtx    sync.Mutex
	cursor int
}

// Dial returns a client for the given endpoints, such as
// "http://127.0.0.1:5555" and "http://127.0.0.1:5556". No request is made.
func Dial(id party.ID, unicastURL, publishURL string) *Client {
	return &Client{
		id:         id,
		unicastURL: strings.TrimSuffix(unicastURL, "/"),
		publishURL: strings.TrimSuffix(publishURL, "/"),
		http:       &http.Client{},
	}
}

// Send implements transport.Dealer.
func (c *Client) Send(ctx context.Context, frames transport.Frames) error {
	body, err := cbor.Marshal([][]byte(frames))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.unicastURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(identityHeader, string(c.id))
	req.Header.Set("Content-Type", contentType)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("httpbus: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return statusError(resp)
	}
	return nil
}

// Recv implements transport.Dealer.
func (c *Client) Recv(ctx context.Context) (transport.Frames, error) {
	var frames [][]byte
	if err := c.poll(ctx, c.unicastURL+"/messages", &frames); err != nil {
		return nil, err
	}
	return frames, nil
}

// Next implements transport.Subscriber.
func (c *Client) Next(ctx context.Context) (transport.Broadcast, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	var msg broadcast
	if err := c.poll(ctx, fmt.Sprintf("%s/topics/%d", c.publishURL, c.cursor), &msg); err != nil {
		return transport.Broadcast{}, err
	}
	c.cursor++
	return transport.Broadcast{Topic: phase.Topic(msg.Topic), Frames: msg.Frames}, nil
}

// poll repeats a long poll until it returns content.
func (c *Client) poll(ctx context.Context, url string, v interface{}) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set(identityHeader, string(c.id))
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("httpbus: poll: %w", err)
		}
		switch resp.StatusCode {
		case http.StatusNoContent:
			resp.Body.Close()
			continue
		case http.StatusGone:
			resp.Body.Close()
			return transport.ErrClosed
		case http.StatusOK:
			data, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return err
			}
			return cbor.Unmarshal(data, v)
		default:
			err = statusError(resp)
			resp.Body.Close()
			return err
		}
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("httpbus: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
}
