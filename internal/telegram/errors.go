package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"gatekeeper/pkg/platform/sentinel"
)

// requester is the part of *tgbotapi.BotAPI the adapters need.
type requester interface {
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// request performs a Bot API call that honours ctx. The library has no
// context support, so a cancelled call is abandoned rather than aborted.
func request(ctx context.Context, api requester, endpoint string, params tgbotapi.Params) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", endpoint, sentinel.ErrUnavailable, err)
	}

	type result struct {
		resp *tgbotapi.APIResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := api.MakeRequest(endpoint, params)
		done <- result{resp: resp, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %w", endpoint, sentinel.ErrUnavailable, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, classify(endpoint, r.err)
		}
		return r.resp.Result, nil
	}
}

// classify maps Bot API failures onto sentinel errors.
func classify(op string, err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
	}

	desc := strings.ToLower(apiErr.Message)
	switch {
	case strings.Contains(desc, "message thread not found"):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrThreadNotFound, apiErr)
	case apiErr.Code == http.StatusForbidden,
		strings.Contains(desc, "not enough rights"),
		strings.Contains(desc, "administrator rights"):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrPermissionDenied, apiErr)
	case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= http.StatusInternalServerError:
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, apiErr)
	case strings.Contains(desc, "not found"), strings.Contains(desc, "user_not_participant"):
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrNotFound, apiErr)
	default:
		return fmt.Errorf("%s: %w", op, apiErr)
	}
}
