// Package api is the HTTP client for the hosted signage RPC service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/genricoloni/screend/internal/config"
	"github.com/genricoloni/screend/internal/domain"
	"go.uber.org/zap"
)

// RPC operation names
const (
	OpResolveByOTP         = "resolve_screen_by_otp"
	OpResolveContent       = "resolve_screen_content"
	OpHeartbeat            = "screen_heartbeat"
	OpPollCommand          = "poll_screen_command"
	OpReportCommandResult  = "report_command_result"
	OpReportDeviceStatus   = "report_device_status"
	OpLogPlaybackEvent     = "log_playback_event"
	codeScreenNotFound     = "screen_not_found"
	_maxResponseSize       = 8 * 1024 * 1024
	_defaultRequestTimeout = 20 * time.Second
)

// RPCError is a non-2xx response the client could not map to a domain error
type RPCError struct {
	Op      string `json:"-"`
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.Status)
}

// Client implements domain.Remote over JSON-over-HTTP RPC
type Client struct {
	logger  *zap.Logger
	http    *http.Client
	baseURL string
	apiKey  string
}

// NewClient creates a client for the configured RPC endpoint
func NewClient(logger *zap.Logger, cfg *config.AppConfig) *Client {
	return NewClientWithHTTP(logger, cfg.APIURL(), cfg.APIKey(), nil)
}

// NewClientWithHTTP creates a client for baseURL; a nil httpClient gets a default timeout
func NewClientWithHTTP(logger *zap.Logger, baseURL, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: _defaultRequestTimeout}
	}
	return &Client{
		logger:  logger,
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type otpRequest struct {
	Code string `json:"otp_code"`
}

type otpResponse struct {
	ScreenID string                `json:"screen_id"`
	Content  *domain.ContentBundle `json:"content"`
}

type screenRequest struct {
	ScreenID string `json:"screen_id"`
}

// ResolveByOTP exchanges a pairing code for a screen identity
func (c *Client) ResolveByOTP(ctx context.Context, code string) (*domain.PairingResult, error) {
	var out otpResponse
	err := c.call(ctx, OpResolveByOTP, otpRequest{Code: code}, &out)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			switch rpcErr.Status {
			case http.StatusBadRequest, http.StatusNotFound, http.StatusGone, http.StatusConflict:
				return nil, &domain.PairingError{Code: code, Reason: reasonOf(rpcErr, "invalid or expired code")}
			}
		}
		return nil, err
	}
	if out.ScreenID == "" {
		return nil, &domain.PairingError{Code: code, Reason: "code was not accepted"}
	}

	result := &domain.PairingResult{ScreenID: out.ScreenID}
	if out.Content != nil && out.Content.Type != "" {
		if err := out.Content.Validate(); err != nil {
			return nil, fmt.Errorf("%s: invalid bundle: %w", OpResolveByOTP, err)
		}
		result.Bundle = out.Content
	}
	return result, nil
}

// Resolve returns the current content bundle for a screen
func (c *Client) Resolve(ctx context.Context, screenID string) (*domain.ContentBundle, error) {
	var bundle *domain.ContentBundle
	if err := c.screenCall(ctx, OpResolveContent, screenID, screenRequest{ScreenID: screenID}, &bundle); err != nil {
		return nil, err
	}
	if bundle == nil || bundle.Type == "" {
		return nil, domain.ErrNoContentAssigned
	}
	if err := bundle.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid bundle: %w", OpResolveContent, err)
	}
	return bundle, nil
}

// Heartbeat pings the service for screenID
func (c *Client) Heartbeat(ctx context.Context, screenID string) error {
	return c.screenCall(ctx, OpHeartbeat, screenID, screenRequest{ScreenID: screenID}, nil)
}

// PollCommand returns the next pending command or nil
func (c *Client) PollCommand(ctx context.Context, screenID string) (*domain.Command, error) {
	var cmd *domain.Command
	if err := c.screenCall(ctx, OpPollCommand, screenID, screenRequest{ScreenID: screenID}, &cmd); err != nil {
		return nil, err
	}
	if cmd == nil || cmd.ID == "" {
		return nil, nil
	}
	return cmd, nil
}

// ReportCommandResult reports the outcome of an executed command
func (c *Client) ReportCommandResult(ctx context.Context, result domain.CommandResult) error {
	return c.call(ctx, OpReportCommandResult, result, nil)
}

// ReportDeviceStatus sends a status snapshot
func (c *Client) ReportDeviceStatus(ctx context.Context, status domain.DeviceStatus) error {
	return c.screenCall(ctx, OpReportDeviceStatus, status.ScreenID, status, nil)
}

// ReportPlaybackEvent records one playback event
func (c *Client) ReportPlaybackEvent(ctx context.Context, event domain.PlaybackEvent) error {
	return c.call(ctx, OpLogPlaybackEvent, event, nil)
}

// screenCall maps a missing screen to ContentNotFoundError
func (c *Client) screenCall(ctx context.Context, op, screenID string, payload, out any) error {
	err := c.call(ctx, op, payload, out)
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && (rpcErr.Status == http.StatusNotFound || rpcErr.Code == codeScreenNotFound) {
		return &domain.ContentNotFoundError{ScreenID: screenID}
	}
	return err
}

func (c *Client) call(ctx context.Context, op string, payload, out any) error {
	if c.baseURL == "" {
		return &domain.NetworkError{Op: op, Err: errors.New("api.url is not configured")}
	}

	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		return fmt.Errorf("%s: failed to encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc/"+op, buf)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "screend/"+config.Version)
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &domain.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, _maxResponseSize))
	if err != nil {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &domain.NetworkError{Op: op, Err: fmt.Errorf("server error: status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 300 {
		rpcErr := &RPCError{Op: op, Status: resp.StatusCode}
		_ = json.Unmarshal(body, rpcErr)
		if rpcErr.Message == "" {
			rpcErr.Message = strings.TrimSpace(string(body))
		}
		c.logger.Debug("RPC rejected", zap.String("op", op), zap.Int("status", resp.StatusCode), zap.String("code", rpcErr.Code))
		return rpcErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

func reasonOf(e *RPCError, fallback string) string {
	if e.Message != "" {
		return e.Message
	}
	return fallback
}
