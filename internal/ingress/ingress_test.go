package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnyUserName/imgpress/internal/accounting"
	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/pipeline"
)

type stubProcessor struct {
	last   pipeline.Input
	result *encoder.Result
	err    error
}

func (s *stubProcessor) Encode(_ context.Context, in pipeline.Input) (*pipeline.Encoded, error) {
	s.last = in
	if s.err != nil {
		return nil, s.err
	}
	stats, _ := accounting.Compute(int64(len(in.Data)), int64(len(s.result.Data)))
	return &pipeline.Encoded{Filename: in.Filename, Result: s.result, Stats: stats}, nil
}

func (s *stubProcessor) Process(ctx context.Context, in pipeline.Input) (*pipeline.Published, error) {
	enc, err := s.Encode(ctx, in)
	if err != nil {
		return nil, err
	}
	return &pipeline.Published{
		Encoded:  *enc,
		Artifact: naming.Artifact{Name: "photo.webp", Path: "uploads/photo.webp"},
		URL:      "https://cdn.example.com/uploads/photo.webp",
		Hash:     "0123456789abcdef",
	}, nil
}

func webpResult() *encoder.Result {
	return &encoder.Result{
		Data: []byte("RIFFxxxxWEBP"), Width: 10, Height: 5, Format: "webp",
		Tier: encoder.TierPrimary, MetadataEmbedded: true, Converted: true,
	}
}

func multipartRequest(t *testing.T, path string, file []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if file != nil {
		fw, err := mw.CreateFormFile("file", "My Photo.jpg")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&e))
	return e
}

func TestConvert_ReturnsBytesAndHeaders(t *testing.T) {
	proc := &stubProcessor{result: webpResult()}
	srv := New(proc, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/convert", make([]byte, 24), map[string]string{
		"metadata":     `{"title":"Demo","keywords":"a, b","density":300}`,
		"quality":      "70",
		"preserveSize": "true",
		"template":     "editorial",
		"maxWidth":     "800",
		"fit":          "cover",
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/webp", rec.Header().Get("Content-Type"))
	assert.Equal(t, "24", rec.Header().Get(accounting.HeaderOriginalSize))
	assert.Equal(t, "12", rec.Header().Get(accounting.HeaderEncodedSize))
	assert.Equal(t, "12", rec.Header().Get(accounting.HeaderWebPSize))
	assert.Equal(t, "50.00", rec.Header().Get(accounting.HeaderCompressionRatio))
	assert.Equal(t, "primary", rec.Header().Get(HeaderTier))
	assert.Equal(t, "true", rec.Header().Get(HeaderEmbedded))
	assert.NotEmpty(t, rec.Header().Get(HeaderRequestID))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename=my-photo.webp`)
	assert.Equal(t, []byte("RIFFxxxxWEBP"), rec.Body.Bytes())

	in := proc.last
	assert.Equal(t, "My Photo.jpg", in.Filename)
	assert.Equal(t, 70, in.Quality)
	assert.True(t, in.PreserveSize)
	assert.Equal(t, "editorial", in.Template)
	require.NotNil(t, in.Overrides)
	assert.Equal(t, "Demo", in.Overrides.Title)
	assert.Equal(t, []string{"a", "b"}, in.Overrides.Keywords)
	assert.Equal(t, 300, in.Overrides.Density)
	require.NotNil(t, in.Resize)
	assert.Equal(t, encoder.FitCover, in.Resize.Fit)
	assert.Equal(t, 800, in.Resize.MaxWidth)
}

func TestConvert_PassthroughTier(t *testing.T) {
	res := &encoder.Result{Data: []byte("gif-bytes"), Format: "gif", Tier: encoder.TierFallback}
	srv := New(&stubProcessor{result: res}, 0, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/convert", []byte("gif-bytes"), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "passthrough", rec.Header().Get(HeaderTier))
	assert.Equal(t, "false", rec.Header().Get(HeaderEmbedded))
	assert.Equal(t, "0.00", rec.Header().Get(accounting.HeaderCompressionRatio))
}

func TestConvert_BadRequests(t *testing.T) {
	cases := map[string]struct {
		file   []byte
		fields map[string]string
	}{
		"missing file":   {nil, nil},
		"bad quality":    {[]byte("x"), map[string]string{"quality": "101"}},
		"bad metadata":   {[]byte("x"), map[string]string{"metadata": "[1,2]"}},
		"bad fit":        {[]byte("x"), map[string]string{"maxWidth": "10", "fit": "stretch"}},
		"bad anchor":     {[]byte("x"), map[string]string{"maxWidth": "10", "anchor": "middle-ish"}},
		"bad preserve":   {[]byte("x"), map[string]string{"preserveSize": "maybe"}},
		"negative width": {[]byte("x"), map[string]string{"maxWidth": "-1"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := New(&stubProcessor{result: webpResult()}, 0, nil)
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, multipartRequest(t, "/convert", tc.file, tc.fields))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, CodeBadRequest, decodeError(t, rec).Code)
		})
	}
}

func TestConvert_BodyOverCeiling(t *testing.T) {
	srv := New(&stubProcessor{result: webpResult()}, 1024, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/convert", make([]byte, formOverhead+4096), nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodePayloadTooLarge, decodeError(t, rec).Code)
}

func TestConvert_EncoderRejections(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&encoder.PayloadTooLargeError{Bytes: 11 << 20, MaxBytes: 10 << 20}, http.StatusRequestEntityTooLarge, CodePayloadTooLarge},
		{&encoder.UnsupportedFormatError{Err: errors.New("image: unknown format")}, http.StatusUnsupportedMediaType, CodeUnsupportedFormat},
		{fmt.Errorf("%w: %q", pipeline.ErrUnknownProfile, "poster"), http.StatusBadRequest, CodeBadRequest},
	}
	for _, tc := range cases {
		srv := New(&stubProcessor{err: tc.err}, 0, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, multipartRequest(t, "/convert", []byte("x"), nil))
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		body := decodeError(t, rec)
		assert.Equal(t, tc.code, body.Code)
		assert.Equal(t, tc.err.Error(), body.Error)
	}
}

func TestUpload_ReturnsJSON(t *testing.T) {
	srv := New(&stubProcessor{result: webpResult()}, 0, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/upload", make([]byte, 24), nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "primary", rec.Header().Get(HeaderTier))

	var resp uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "photo.webp", resp.Name)
	assert.Equal(t, "https://cdn.example.com/uploads/photo.webp", resp.URL)
	assert.Equal(t, int64(12), resp.Stats.SavedBytes)
	assert.Equal(t, rec.Header().Get(HeaderRequestID), resp.RequestID)
}

func TestUpload_NamingExhausted(t *testing.T) {
	srv := New(&stubProcessor{err: fmt.Errorf("reserve name: %w", &naming.NamingExhaustedError{Base: "photo", Attempts: 11})}, 0, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, multipartRequest(t, "/upload", []byte("x"), nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeNamingExhausted, decodeError(t, rec).Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New(&stubProcessor{}, 0, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/convert", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{nil, http.StatusOK, ""},
		{context.Canceled, http.StatusServiceUnavailable, CodeCancelled},
		{&http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, CodePayloadTooLarge},
		{&RequestError{Field: "file", Reason: "missing"}, http.StatusBadRequest, CodeBadRequest},
		{&metadata.InvalidMetadataError{Field: "orientation"}, http.StatusBadRequest, CodeBadRequest},
		{&pipeline.UploadError{Path: "a", Attempts: 3, Err: errors.New("boom")}, http.StatusInternalServerError, CodeUploadFailed},
		{errors.New("disk on fire"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		status, code := StatusFor(tc.err)
		assert.Equal(t, tc.status, status, "%v", tc.err)
		assert.Equal(t, tc.code, code, "%v", tc.err)
	}
}
