package auth

import (
	"context"
	"io"
	"time"
)

// DefaultBinaryContentType is sent when a Binary carries no content type.
const DefaultBinaryContentType = "application/octet-stream"

// RetrieveRequest identifies a binary and carries the presented signature.
type RetrieveRequest struct {
	ID        string
	VersionID string
	Signature string
}

// BinaryGatewayOption customizes a BinaryGateway.
type BinaryGatewayOption func(*BinaryGateway)

// WithSignatureVerifier checks signatures beyond the presence check.
func WithSignatureVerifier(verifier SignatureVerifier) BinaryGatewayOption {
	return func(g *BinaryGateway) {
		if verifier != nil {
			g.verifier = verifier
		}
	}
}

// WithBinaryGatewayLogger sets the logger.
func WithBinaryGatewayLogger(logger Logger) BinaryGatewayOption {
	return func(g *BinaryGateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithBinaryGatewayMetrics records retrieval outcomes and streamed bytes.
func WithBinaryGatewayMetrics(metrics *Metrics) BinaryGatewayOption {
	return func(g *BinaryGateway) {
		g.metrics = metrics
	}
}

// WithBinaryGatewayActivitySink publishes a retrieval event per served binary.
func WithBinaryGatewayActivitySink(sink ActivitySink) BinaryGatewayOption {
	return func(g *BinaryGateway) {
		g.activity = normalizeActivitySink(sink)
	}
}

// BinaryGateway serves the bytes behind Binary resources to signed requests.
type BinaryGateway struct {
	repo     ResourceRepository
	store    ContentStore
	verifier SignatureVerifier
	logger   Logger
	metrics  *Metrics
	activity ActivitySink
	now      func() time.Time
}

// NewBinaryGateway returns a gateway reading metadata from repo and bytes
// from store.
func NewBinaryGateway(repo ResourceRepository, store ContentStore, opts ...BinaryGatewayOption) *BinaryGateway {
	g := &BinaryGateway{
		repo:  repo,
		store: store,
		verifier: SignatureVerifierFunc(func(context.Context, RetrieveRequest) error {
			return nil
		}),
		logger:   defLogger{},
		activity: noopActivitySink{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Open authorizes req and loads the Binary it names. Unsigned requests are
// rejected before the repository is consulted.
func (g *BinaryGateway) Open(ctx context.Context, req RetrieveRequest) (*Binary, error) {
	if req.Signature == "" {
		return nil, NewUnauthorizedError()
	}
	if err := g.verifier.Verify(ctx, req); err != nil {
		g.logger.Debug("binary signature rejected", "id", req.ID, "error", err)
		return nil, NewUnauthorizedError()
	}

	if req.VersionID != "" {
		return ReadVersionAs[*Binary](ctx, g.repo, "Binary", req.ID, req.VersionID)
	}
	return ReadAs[*Binary](ctx, g.repo, "Binary", req.ID)
}

// Stream copies the content of binary to w. A copy that fails after the
// first byte, or ends short of the declared size, is reported as a
// truncated stream so the consumer never mistakes it for a full payload.
func (g *BinaryGateway) Stream(ctx context.Context, binary *Binary, w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	_, err := g.store.ReadBinary(ctx, binary, cw)

	switch {
	case err != nil && cw.n > 0:
		err = NewTruncatedStreamError(cw.n, binary.Size, err)
	case err != nil:
		err = storageError(err, "failed to read binary content")
	case binary.Size > 0 && cw.n != binary.Size:
		err = NewTruncatedStreamError(cw.n, binary.Size, nil)
	}

	if err != nil {
		g.logger.Error("binary stream failed", "id", binary.ID, "written", cw.n, "expected", binary.Size, "error", err)
	}
	return cw.n, err
}

// Retrieve opens req, announces the content type to sink and streams the
// content into it.
func (g *BinaryGateway) Retrieve(ctx context.Context, req RetrieveRequest, sink BinarySink) (binary *Binary, err error) {
	var written int64
	defer func() { g.Observe(ctx, binary, written, err) }()

	binary, err = g.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	sink.SetContentType(ContentTypeOf(binary))
	written, err = g.Stream(ctx, binary, sink)
	return binary, err
}

// Observe records the outcome of a retrieval. Transport adapters that call
// Open and Stream directly report through it.
func (g *BinaryGateway) Observe(ctx context.Context, binary *Binary, written int64, err error) {
	g.metrics.observeBinary(written, err)
	if err != nil || binary == nil {
		return
	}
	recordActivity(ctx, normalizeActivitySink(g.activity), g.logger, g.now, ActivityEvent{
		EventType: ActivityEventBinaryRetrieved,
		Actor:     ActorRef{Type: "signed_url"},
		Metadata: map[string]any{
			"binary":     binary.ID,
			"version_id": binary.VersionID(),
			"bytes":      written,
		},
	})
}

// Store writes the content read from r and creates the Binary describing
// it. The content locator is fixed before the write so later versions of
// the resource keep pointing at the same bytes.
func (g *BinaryGateway) Store(ctx context.Context, binary *Binary, r io.Reader) (*Binary, error) {
	if binary == nil {
		return nil, NewValidationError("binary is required")
	}
	if binary.ContentType == "" {
		binary.ContentType = DefaultBinaryContentType
	}
	if binary.ID == "" {
		binary.ID = NewResourceID()
	}
	binary.URL = BinaryStorageKey(binary.ID, NewVersionID())

	written, err := g.store.WriteBinary(ctx, binary, r)
	if err != nil {
		return nil, storageError(err, "failed to write binary content")
	}
	binary.Size = written

	created, err := CreateAs(ctx, g.repo, binary)
	if err != nil {
		g.logger.Warn("binary content written without resource", "key", binary.URL, "error", err)
		return nil, err
	}
	return created, nil
}

// ContentTypeOf returns the content type to announce for binary.
func ContentTypeOf(binary *Binary) string {
	if binary == nil || binary.ContentType == "" {
		return DefaultBinaryContentType
	}
	return binary.ContentType
}

// BinaryStorageKey is the content locator for one stored payload.
func BinaryStorageKey(id, versionID string) string {
	return "binary/" + id + "/" + versionID
}

// BinaryContentKey returns where the content of binary lives. Binaries
// written by Store carry their locator; others fall back to id and version.
func BinaryContentKey(binary *Binary) string {
	if binary.URL != "" {
		return binary.URL
	}
	return BinaryStorageKey(binary.ID, binary.VersionID())
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
