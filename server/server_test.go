package server

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fingerprint "github.com/high-horse/fingerprint-server"
	"github.com/high-horse/fingerprint-server/config"
	"github.com/high-horse/fingerprint-server/internal/testutil"
	"github.com/high-horse/fingerprint-server/ratelimit"
	"github.com/high-horse/fingerprint-server/service"
)

var fixedNow = func() time.Time { return time.Date(2024, 9, 2, 8, 30, 0, 0, time.UTC) }

func newTestServer(opts ...Option) (*Server, *logtest.Hook) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	svc := service.New(logger, nil, fingerprint.DefaultPolicy())
	opts = append([]Option{WithClock(fixedNow)}, opts...)
	return New(config.LoadDefaultConfig().Server, logger, svc, opts...), hook
}

func post(t *testing.T, app *fiber.App, path string, body any) *http.Response {
	t.Helper()
	raw, err := jsoniter.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, jsoniter.Unmarshal(raw, v), string(raw))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer()

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	var body struct {
		Status          string    `json:"status"`
		Time            time.Time `json:"time"`
		TemplateVersion string    `json:"template_version"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.True(t, fixedNow().Equal(body.Time))
	assert.Equal(t, fingerprint.TemplateVersion, body.TemplateVersion)
}

func TestMatchEndpoint(t *testing.T) {
	s, hook := newTestServer()
	t1 := testutil.RandomTemplate(1, 20)
	req := service.MatchRequest{
		Probe: testutil.MustEncode(t, testutil.Shift(t1, 3, 1)),
		Roster: []service.RosterItem{
			{PersonID: "S1", Template: testutil.MustEncode(t, t1)},
			{PersonID: "S2", Template: testutil.MustEncode(t, testutil.RandomTemplate(2, 20))},
		},
	}

	raw, err := jsoniter.Marshal(req)
	require.NoError(t, err)
	httpReq := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader(raw))
	httpReq.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	httpReq.Header.Set(fiber.HeaderXRequestID, "trace-7")
	resp, err := s.App().Test(httpReq, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "trace-7", resp.Header.Get(fiber.HeaderXRequestID))

	var out service.MatchResponse
	decode(t, resp, &out)
	assert.Equal(t, fingerprint.Matched, out.Outcome)
	require.NotNil(t, out.PersonID)
	assert.Equal(t, "S1", *out.PersonID)

	// the service entry carries the caller's id, the access log follows it
	var found bool
	for _, e := range hook.AllEntries() {
		if e.Message == "identification finished" {
			found = true
			assert.Equal(t, "trace-7", e.Data["request_id"])
		}
	}
	assert.True(t, found)
	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "success", last.Message)
	assert.Equal(t, http.StatusOK, last.Data["status"])
	assert.Equal(t, "/match", last.Data["path"])
}

func TestErrorStatuses(t *testing.T) {
	s, _ := newTestServer()
	t1 := testutil.MustEncode(t, testutil.RandomTemplate(1, 20))
	dup := service.RosterItem{PersonID: "S1", Template: t1}

	tests := []struct {
		name string
		path string
		body any
		code int
	}{
		{"missing probe", "/match", service.MatchRequest{}, http.StatusBadRequest},
		{"malformed template", "/verify-quality", service.QualityRequest{Template: "%%"}, http.StatusBadRequest},
		{"duplicate person", "/match", service.MatchRequest{Probe: t1, Roster: []service.RosterItem{dup, dup}}, http.StatusConflict},
		{"unsupported media", "/extract", service.ExtractRequest{Image: "data:text/plain;base64,aGk="}, http.StatusUnsupportedMediaType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, s.App(), tt.path, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
			var out ErrorResponse
			decode(t, resp, &out)
			assert.NotEmpty(t, out.Error)
		})
	}
}

func TestInvalidBody(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/match", bytes.NewReader([]byte("{")))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out ErrorResponse
	decode(t, resp, &out)
	assert.Contains(t, out.Error, "invalid request body")
}

func TestVerifyEndpoints(t *testing.T) {
	s, _ := newTestServer()
	base := testutil.RandomTemplate(1, 20)

	resp := post(t, s.App(), "/verify", service.VerifyRequest{
		Probe:     testutil.MustEncode(t, testutil.Shift(base, 4, -3)),
		Candidate: testutil.MustEncode(t, base),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v fingerprint.Verification
	decode(t, resp, &v)
	assert.True(t, v.Matched)

	resp = post(t, s.App(), "/verify-quality", service.QualityRequest{Template: testutil.MustEncode(t, base)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var q service.QualityResponse
	decode(t, resp, &q)
	assert.True(t, q.Accepted)
	assert.Equal(t, 20, q.MinutiaeCount)

	resp = post(t, s.App(), "/extract-features", service.FeaturesRequest{Template: testutil.MustEncode(t, base)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var f fingerprint.Features
	decode(t, resp, &f)
	assert.Equal(t, 20, f.MinutiaeCount)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.New(0.001, 2, ratelimit.WithClock(fixedNow))
	s, hook := newTestServer(WithLimiter(limiter))

	for i := 0; i < 2; i++ {
		resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var out ErrorResponse
	decode(t, resp, &out)
	assert.Equal(t, "too many requests", out.Error)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 1, limiter.Len())
}

func TestPanicBecomes500(t *testing.T) {
	s, hook := newTestServer()
	s.App().Get("/boom", func(c *fiber.Ctx) error {
		panic("boom")
	})

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var out ErrorResponse
	decode(t, resp, &out)
	assert.Equal(t, "internal server error", out.Error)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, "server error", last.Message)
}
