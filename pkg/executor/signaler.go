package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/rookery/pkg/log"
	"github.com/cuemby/rookery/pkg/metrics"
)

// ErrSignalerClosed is returned by Send after Close
var ErrSignalerClosed = errors.New("signaler closed")

// Caps on how much of a response body is returned
const (
	maxResponseLines    = 1000
	maxResponseLineSize = 1 << 20
)

// Signaler sends a cooperative stop request to a task endpoint
type Signaler interface {
	Send(ctx context.Context, endpoint, payload string) ([]string, error)
}

// SignalError reports a failed cooperative stop request
type SignalError struct {
	Endpoint   string
	StatusCode int // Zero when no response was received
	Err        error
}

func (e *SignalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("signal %s: HTTP %d", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("signal %s: %v", e.Endpoint, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }

// Timeout reports whether the request ran out of time
func (e *SignalError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

type signalRequest struct {
	ctx      context.Context
	endpoint string
	payload  string
	done     chan signalResult
}

type signalResult struct {
	lines []string
	err   error
}

// HTTPSignaler posts stop requests from a single worker goroutine, so at
// most one request is in flight no matter how many callers there are
type HTTPSignaler struct {
	client  *http.Client
	timeout time.Duration
	logger  zerolog.Logger

	requests  chan *signalRequest
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Signaler = (*HTTPSignaler)(nil)

// NewHTTPSignaler starts a signaler whose calls are each bounded by timeout
func NewHTTPSignaler(timeout time.Duration) *HTTPSignaler {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &HTTPSignaler{
		client:   &http.Client{},
		timeout:  timeout,
		logger:   log.WithComponent("signaler"),
		requests: make(chan *signalRequest),
		stopCh:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Send queues a request and waits for its result. The timeout covers the
// time spent waiting for the worker as well as the call itself.
func (s *HTTPSignaler) Send(ctx context.Context, endpoint, payload string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := &signalRequest{
		ctx:      ctx,
		endpoint: endpoint,
		payload:  payload,
		done:     make(chan signalResult, 1),
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return nil, s.record(&SignalError{Endpoint: endpoint, Err: ctx.Err()})
	case <-s.stopCh:
		return nil, &SignalError{Endpoint: endpoint, Err: ErrSignalerClosed}
	}

	select {
	case res := <-req.done:
		return res.lines, s.record(res.err)
	case <-ctx.Done():
		return nil, s.record(&SignalError{Endpoint: endpoint, Err: ctx.Err()})
	}
}

// Close stops the worker. Pending Send calls fail with ErrSignalerClosed.
func (s *HTTPSignaler) Close() {
	s.closeOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *HTTPSignaler) worker() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.requests:
			// The caller may have given up while the request was queued
			if err := req.ctx.Err(); err != nil {
				req.done <- signalResult{err: &SignalError{Endpoint: req.endpoint, Err: err}}
				continue
			}
			lines, err := s.call(req)
			req.done <- signalResult{lines: lines, err: err}
		case <-s.stopCh:
			return
		}
	}
}

func (s *HTTPSignaler) call(r *signalRequest) ([]string, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SignalDuration)

	req, err := http.NewRequestWithContext(r.ctx, http.MethodPost, r.endpoint, strings.NewReader(r.payload))
	if err != nil {
		return nil, &SignalError{Endpoint: r.endpoint, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctxErr := r.ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &SignalError{Endpoint: r.endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &SignalError{
			Endpoint:   r.endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	var lines []string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxResponseLineSize)
	for scanner.Scan() && len(lines) < maxResponseLines {
		lines = append(lines, scanner.Text())
	}
	// The task already acknowledged with a 2xx; an oversized line only
	// truncates what is returned
	if err := scanner.Err(); errors.Is(err, bufio.ErrTooLong) {
		s.logger.Warn().Str("endpoint", r.endpoint).Msg("Stop response line too long, truncating")
	} else if err != nil {
		return nil, &SignalError{Endpoint: r.endpoint, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	s.logger.Debug().Str("endpoint", r.endpoint).Int("lines", len(lines)).Msg("Stop signal acknowledged")
	return lines, nil
}

// record counts the outcome of one Send and passes err through
func (s *HTTPSignaler) record(err error) error {
	result := "success"
	var sigErr *SignalError
	switch {
	case err == nil:
	case errors.As(err, &sigErr) && sigErr.Timeout():
		result = "timeout"
	case errors.As(err, &sigErr) && sigErr.StatusCode != 0:
		result = "rejected"
	default:
		result = "error"
	}
	metrics.SignalCallsTotal.WithLabelValues(result).Inc()
	return err
}
