// Package ingress exposes the convert operation over HTTP.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/AnyUserName/imgpress/internal/accounting"
	"github.com/AnyUserName/imgpress/internal/encoder"
	"github.com/AnyUserName/imgpress/internal/metadata"
	"github.com/AnyUserName/imgpress/internal/naming"
	"github.com/AnyUserName/imgpress/internal/pipeline"
)

// Response headers beyond the accounting ones.
const (
	HeaderTier      = "X-Encoder-Tier"
	HeaderEmbedded  = "X-Metadata-Embedded"
	HeaderRequestID = "X-Request-ID"
)

// formOverhead is allowed on top of the payload ceiling for the other
// multipart fields.
const formOverhead = 1 << 20

// Processor is the part of the pipeline the handlers drive.
type Processor interface {
	Encode(ctx context.Context, in pipeline.Input) (*pipeline.Encoded, error)
	Process(ctx context.Context, in pipeline.Input) (*pipeline.Published, error)
}

// Server serves the convert and upload endpoints.
type Server struct {
	proc     Processor
	maxBytes int64
	logger   *slog.Logger
}

// New creates a server. maxBytes is the payload ceiling; zero selects the
// encoder default.
func New(proc Processor, maxBytes int64, logger *slog.Logger) *Server {
	if maxBytes <= 0 {
		maxBytes = encoder.DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{proc: proc, maxBytes: maxBytes, logger: logger}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /convert", s.handleConvert)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// handleConvert returns the encoded bytes with statistics headers.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	log := s.logger.With("request", id)
	w.Header().Set(HeaderRequestID, id)

	in, err := s.parseInput(w, r)
	if err != nil {
		s.writeError(w, log, err)
		return
	}
	enc, err := s.proc.Encode(r.Context(), in)
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	res := enc.Result
	h := w.Header()
	setResultHeaders(h, enc)
	h.Set("Content-Type", contentType(res.Format))
	h.Set("Content-Length", strconv.Itoa(len(res.Data)))
	h.Set("Content-Disposition", mime.FormatMediaType("inline",
		map[string]string{"filename": naming.BaseName(in.Filename) + "." + res.Extension()}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		log.Debug("write response", "error", err)
	}
	log.Info("converted", "asset", in.Filename, "tier", res.Label(), "ratio", enc.Stats.RatioString())
}

// uploadResponse is the JSON body of a successful upload.
type uploadResponse struct {
	RequestID        string           `json:"requestId"`
	Name             string           `json:"name"`
	Path             string           `json:"path"`
	URL              string           `json:"url"`
	Format           string           `json:"format"`
	Width            int              `json:"width"`
	Height           int              `json:"height"`
	Tier             string           `json:"tier"`
	MetadataEmbedded bool             `json:"metadataEmbedded"`
	Hash             string           `json:"hash"`
	Digest           string           `json:"digest"`
	Stats            accounting.Stats `json:"stats"`
}

// handleUpload runs the full pipeline and reports the stored artifact.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	log := s.logger.With("request", id)
	w.Header().Set(HeaderRequestID, id)

	in, err := s.parseInput(w, r)
	if err != nil {
		s.writeError(w, log, err)
		return
	}
	pub, err := s.proc.Process(r.Context(), in)
	if err != nil {
		s.writeError(w, log, err)
		return
	}

	setResultHeaders(w.Header(), &pub.Encoded)
	writeJSON(w, http.StatusCreated, uploadResponse{
		RequestID:        id,
		Name:             pub.Artifact.Name,
		Path:             pub.Artifact.Path,
		URL:              pub.URL,
		Format:           pub.Result.Format,
		Width:            pub.Result.Width,
		Height:           pub.Result.Height,
		Tier:             pub.Result.Label(),
		MetadataEmbedded: pub.Result.MetadataEmbedded,
		Hash:             pub.Hash,
		Digest:           pub.Digest,
		Stats:            pub.Stats,
	})
	log.Info("uploaded", "asset", in.Filename, "path", pub.Artifact.Path, "tier", pub.Result.Label())
}

// RequestError is a malformed request.
type RequestError struct {
	Field  string
	Reason string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// parseInput reads the multipart form into a pipeline input.
func (s *Server) parseInput(w http.ResponseWriter, r *http.Request) (pipeline.Input, error) {
	var in pipeline.Input
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return in, &encoder.PayloadTooLargeError{Bytes: mbe.Limit, MaxBytes: s.maxBytes}
		}
		return in, &RequestError{Field: "form", Reason: err.Error()}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return in, &RequestError{Field: "file", Reason: "missing image file"}
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return in, fmt.Errorf("read upload: %w", err)
	}
	in.Data = data
	in.Filename = header.Filename
	in.DeclaredSize = header.Size

	if raw := r.FormValue("metadata"); raw != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return in, &RequestError{Field: "metadata", Reason: "not a JSON object"}
		}
		overrides, err := metadata.ParseOverrides(m)
		if err != nil {
			s.logger.Warn("invalid metadata overrides dropped", "asset", in.Filename, "error", err)
		}
		in.Overrides = overrides
	}

	if in.Quality, err = formInt(r, "quality", 0, 100); err != nil {
		return in, err
	}
	if v := r.FormValue("preserveSize"); v != "" {
		if in.PreserveSize, err = strconv.ParseBool(v); err != nil {
			return in, &RequestError{Field: "preserveSize", Reason: "expected a boolean"}
		}
	}
	in.Template = strings.TrimSpace(r.FormValue("template"))
	in.Profile = strings.TrimSpace(r.FormValue("profile"))

	rz, err := parseResize(r)
	if err != nil {
		return in, err
	}
	in.Resize = rz
	return in, nil
}

func parseResize(r *http.Request) (*encoder.Resize, error) {
	w, err := formInt(r, "maxWidth", 0, 1<<15)
	if err != nil {
		return nil, err
	}
	h, err := formInt(r, "maxHeight", 0, 1<<15)
	if err != nil {
		return nil, err
	}
	if w == 0 && h == 0 {
		return nil, nil
	}
	fit, err := encoder.ParseFit(r.FormValue("fit"))
	if err != nil {
		return nil, &RequestError{Field: "fit", Reason: err.Error()}
	}
	anchor := r.FormValue("anchor")
	if anchor != "" && !encoder.ValidAnchor(anchor) {
		return nil, &RequestError{Field: "anchor", Reason: fmt.Sprintf("unknown anchor %q", anchor)}
	}
	return &encoder.Resize{MaxWidth: w, MaxHeight: h, Fit: fit, Anchor: anchor}, nil
}

func formInt(r *http.Request, field string, lo, hi int) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < lo || n > hi {
		return 0, &RequestError{Field: field, Reason: fmt.Sprintf("expected an integer in %d-%d", lo, hi)}
	}
	return n, nil
}

func setResultHeaders(h http.Header, enc *pipeline.Encoded) {
	enc.Stats.SetHeaders(h)
	h.Set(HeaderTier, enc.Result.Label())
	h.Set(HeaderEmbedded, strconv.FormatBool(enc.Result.MetadataEmbedded))
}

func contentType(format string) string {
	switch format {
	case "webp", "jpeg", "png", "gif", "bmp", "tiff":
		return "image/" + format
	default:
		return "application/octet-stream"
	}
}
