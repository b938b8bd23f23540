package apilog

import (
	"bytes"
	"context"
	"database/sql"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/RaghavSood/crosswap/db"
)

const maxBodySize = 64 * 1024 // 64KB

// redactedHeaders are never written to the database.
var redactedHeaders = []string{"X-Lifi-Api-Key", "Authorization"}

// Recorder persists one request/response pair; *db.Store satisfies it.
type Recorder interface {
	InsertAPIRequest(ctx context.Context, arg db.InsertAPIRequestParams) error
}

// Transport is an http.RoundTripper that logs aggregator traffic to the database.
type Transport struct {
	inner    http.RoundTripper
	provider string
	store    Recorder
	sync     bool
}

// NewTransport wraps inner (http.DefaultTransport when nil).
func NewTransport(provider string, store Recorder, inner http.RoundTripper) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		inner:    inner,
		provider: provider,
		store:    store,
	}
}

// Synchronous makes RoundTrip wait for the insert; used in tests.
func (t *Transport) Synchronous() *Transport {
	t.sync = true
	return t
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	var reqBody []byte
	if req.Body != nil {
		reqBody, _ = io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(reqBody))
	}

	reqHeaders := headerString(req.Header)

	start := time.Now()
	resp, err := t.inner.RoundTrip(req)
	duration := time.Since(start).Milliseconds()

	params := db.InsertAPIRequestParams{
		Provider:       t.provider,
		Method:         req.Method,
		Url:            req.URL.String(),
		RequestHeaders: toNullString(reqHeaders),
		RequestBody:    toNullString(truncate(string(reqBody))),
		DurationMs:     sql.NullInt64{Int64: duration, Valid: true},
	}

	if err != nil {
		params.Error = toNullString(err.Error())
	} else {
		var respBody []byte
		if resp.Body != nil {
			respBody, _ = io.ReadAll(resp.Body)
			resp.Body.Close()
			resp.Body = io.NopCloser(bytes.NewReader(respBody))
		}
		params.ResponseStatus = sql.NullInt64{Int64: int64(resp.StatusCode), Valid: true}
		params.ResponseHeaders = toNullString(headerString(resp.Header))
		params.ResponseBody = toNullString(truncate(string(respBody)))
	}

	insert := func() {
		if dbErr := t.store.InsertAPIRequest(context.Background(), params); dbErr != nil {
			log.Printf("apilog: failed to log %s %s: %v", params.Method, params.Url, dbErr)
		}
	}
	if t.sync {
		insert()
	} else {
		go insert()
	}

	return resp, err
}

func headerString(h http.Header) string {
	clean := h.Clone()
	for _, name := range redactedHeaders {
		if clean.Get(name) != "" {
			clean.Set(name, "[redacted]")
		}
	}
	var buf bytes.Buffer
	clean.Write(&buf)
	return strings.TrimSpace(buf.String())
}

func truncate(s string) string {
	if len(s) > maxBodySize {
		return s[:maxBodySize] + "...[truncated]"
	}
	return s
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
