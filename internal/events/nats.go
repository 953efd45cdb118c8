// Package events publishes job state transitions on NATS.
package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kiranshivaraju/jobtrack/pkg/models"
)

// StateSubjectPattern matches the state subjects of every job.
const StateSubjectPattern = "jobs.*.state"

// StateSubject is the subject state changes of jobID are published on. The id is
// base64url-encoded so that dots, wildcards and spaces stay inside one token;
// subscribers read the plain id from the event payload.
func StateSubject(jobID string) string {
	return "jobs." + base64.RawURLEncoding.EncodeToString([]byte(jobID)) + ".state"
}

// Publisher sends job lifecycle events.
type Publisher interface {
	PublishStateChanged(ctx context.Context, ev models.JobStateChanged) error
	Close()
}

// Client is a NATS connection used both to publish and to watch state changes.
type Client struct{ nc *nats.Conn }

// Connect dials url and keeps reconnecting for the life of the process.
func Connect(url string) (*Client, error) {
	nc, err := nats.Connect(url,
		nats.Name("jobtrack"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return &Client{nc: nc}, nil
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() {
	if c.nc != nil {
		_ = c.nc.Drain()
	}
}

// PublishStateChanged publishes ev on the job's state subject.
func (c *Client) PublishStateChanged(_ context.Context, ev models.JobStateChanged) error {
	return c.publishJSON(StateSubject(ev.JobID), ev)
}

func (c *Client) publishJSON(subject string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.nc.Publish(subject, b)
}

// SubscribeStateChanges calls handler for every state change published on
// subject, which may be StateSubject(jobID) or StateSubjectPattern. Messages that
// do not decode are logged and dropped.
func (c *Client) SubscribeStateChanges(subject string, handler func(ev models.JobStateChanged)) (*nats.Subscription, error) {
	return c.nc.Subscribe(subject, func(msg *nats.Msg) {
		var ev models.JobStateChanged
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			slog.Warn("dropping undecodable state event", "subject", msg.Subject, "error", err)
			return
		}
		handler(ev)
	})
}

// Flush waits until the server has processed everything published so far.
func (c *Client) Flush() error {
	return c.nc.Flush()
}

// NopPublisher discards events. It is used when NATS_URL is unset.
type NopPublisher struct{}

func (NopPublisher) PublishStateChanged(context.Context, models.JobStateChanged) error {
	return nil
}

func (NopPublisher) Close() {}

var (
	_ Publisher = (*Client)(nil)
	_ Publisher = NopPublisher{}
)
