package executor

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSignalerSuccess(t *testing.T) {
	var gotBody, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, "stopping\nbye\n")
	}))
	defer srv.Close()

	s := NewHTTPSignaler(time.Second)
	defer s.Close()

	lines, err := s.Send(context.Background(), srv.URL+"/stop", "shutdown")
	require.NoError(t, err)
	assert.Equal(t, []string{"stopping", "bye"}, lines)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "shutdown", gotBody)
}

func TestHTTPSignalerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	s := NewHTTPSignaler(time.Second)
	defer s.Close()

	_, err := s.Send(context.Background(), srv.URL, "")
	require.Error(t, err)

	var sigErr *SignalError
	require.True(t, errors.As(err, &sigErr))
	assert.Equal(t, http.StatusServiceUnavailable, sigErr.StatusCode)
	assert.False(t, sigErr.Timeout())
}

func TestHTTPSignalerTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	s := NewHTTPSignaler(50 * time.Millisecond)
	defer s.Close()

	start := time.Now()
	_, err := s.Send(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)

	var sigErr *SignalError
	require.True(t, errors.As(err, &sigErr))
	assert.True(t, sigErr.Timeout())
}

func TestHTTPSignalerOneInFlight(t *testing.T) {
	var inFlight, maxInFlight int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		_, _ = io.WriteString(w, "ok")
	}))
	defer srv.Close()

	s := NewHTTPSignaler(5 * time.Second)
	defer s.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Send(context.Background(), srv.URL, "")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestHTTPSignalerClosed(t *testing.T) {
	s := NewHTTPSignaler(time.Second)
	s.Close()
	s.Close()

	_, err := s.Send(context.Background(), "http://127.0.0.1:1", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignalerClosed)
}

func TestHTTPSignalerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPSignaler(time.Second)
	defer s.Close()

	_, err := s.Send(context.Background(), url, "")
	require.Error(t, err)

	var sigErr *SignalError
	require.True(t, errors.As(err, &sigErr))
	assert.Zero(t, sigErr.StatusCode)
}

func TestHTTPSignalerLongResponseLines(t *testing.T) {
	long := strings.Repeat("a", 100*1024)
	huge := strings.Repeat("b", 2<<20)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/long":
			_, _ = io.WriteString(w, "first\n"+long+"\n")
		default:
			_, _ = io.WriteString(w, "first\n"+huge+"\n")
		}
	}))
	defer srv.Close()

	s := NewHTTPSignaler(5 * time.Second)
	defer s.Close()

	lines, err := s.Send(context.Background(), srv.URL+"/long", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"first", long}, lines)

	lines, err = s.Send(context.Background(), srv.URL+"/huge", "")
	require.NoError(t, err, "an acknowledged stop must not fail on an oversized line")
	assert.Equal(t, []string{"first"}, lines)
}
