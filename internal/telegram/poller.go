package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gatekeeper/internal/platform/metrics"
)

// Update is a Bot API update together with the forum thread of its message.
// The library's Message type predates forum topics.
type Update struct {
	tgbotapi.Update
	ThreadID int
}

type threadProbe struct {
	UpdateID int `json:"update_id"`
	Message  *struct {
		MessageThreadID int  `json:"message_thread_id"`
		IsTopicMessage  bool `json:"is_topic_message"`
	} `json:"message"`
}

const (
	defaultPollTimeout = 50 * time.Second
	defaultRetryDelay  = 3 * time.Second
)

// Poller long-polls getUpdates.
type Poller struct {
	api        requester
	timeout    time.Duration
	retryDelay time.Duration
	offset     int
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type PollerOption func(*Poller)

func WithPollTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.timeout = d
	}
}

func WithRetryDelay(d time.Duration) PollerOption {
	return func(p *Poller) {
		p.retryDelay = d
	}
}

func WithPollerLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		p.logger = logger
	}
}

func WithPollerMetrics(m *metrics.Metrics) PollerOption {
	return func(p *Poller) {
		p.metrics = m
	}
}

func NewPoller(api requester, opts ...PollerOption) *Poller {
	p := &Poller{
		api:        api,
		timeout:    defaultPollTimeout,
		retryDelay: defaultRetryDelay,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run delivers updates to handle in order until ctx is done. Poll failures
// are logged and retried after a delay. Updates that cannot be decoded are
// logged and skipped.
func (p *Poller) Run(ctx context.Context, handle func(context.Context, Update)) error {
	for {
		b, err := p.fetch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			p.metrics.IncPollError()
			p.logger.WarnContext(ctx, "polling failed", "error", err, "retry_in", p.retryDelay.String())
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.retryDelay):
			}
			continue
		}
		for _, err := range b.skipped {
			p.metrics.IncUpdate("undecodable")
			p.logger.WarnContext(ctx, "skipping undecodable update", "error", err)
		}
		if b.lastID >= p.offset {
			p.offset = b.lastID + 1
		}
		for _, u := range b.updates {
			handle(ctx, u)
		}
	}
}

// batch is one decoded getUpdates response. lastID covers skipped updates
// too, so the offset moves past them.
type batch struct {
	updates []Update
	lastID  int
	skipped []error
}

func (p *Poller) fetch(ctx context.Context) (batch, error) {
	params := tgbotapi.Params{}
	params.AddNonZero("offset", p.offset)
	params.AddNonZero("timeout", int(p.timeout.Seconds()))
	if err := params.AddInterface("allowed_updates", []string{"message", "callback_query"}); err != nil {
		return batch{}, err
	}

	raw, err := request(ctx, p.api, "getUpdates", params)
	if err != nil {
		return batch{}, err
	}
	return decodeUpdates(raw)
}

func decodeUpdates(raw json.RawMessage) (batch, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return batch{}, fmt.Errorf("getUpdates: decode: %w", err)
	}

	var b batch
	for _, item := range items {
		var probe threadProbe
		probeErr := json.Unmarshal(item, &probe)
		if probeErr == nil && probe.UpdateID > b.lastID {
			b.lastID = probe.UpdateID
		}

		var u tgbotapi.Update
		if err := json.Unmarshal(item, &u); err != nil {
			b.skipped = append(b.skipped, fmt.Errorf("update %d: %w", probe.UpdateID, err))
			continue
		}
		if u.UpdateID > b.lastID {
			b.lastID = u.UpdateID
		}
		out := Update{Update: u}
		if probeErr == nil && probe.Message != nil && probe.Message.IsTopicMessage {
			out.ThreadID = probe.Message.MessageThreadID
		}
		b.updates = append(b.updates, out)
	}
	return b, nil
}
