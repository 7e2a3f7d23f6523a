package storage

import (
	"bytes"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	auth "github.com/goliatone/go-fhir-auth"
)

// Handler exposes binary retrieval and upload over fiber.
type Handler struct {
	gateway *auth.BinaryGateway
	tokens  auth.TokenService
	signer  *auth.BinarySigner
	baseURL string
	logger  auth.Logger
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

// WithUploads enables POST /storage for holders of a valid access token.
func WithUploads(tokens auth.TokenService) HandlerOption {
	return func(h *Handler) {
		h.tokens = tokens
	}
}

// WithSignedLocations adds a signed retrieval URL to upload responses.
func WithSignedLocations(signer *auth.BinarySigner, baseURL string) HandlerOption {
	return func(h *Handler) {
		h.signer = signer
		h.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(logger auth.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler returns a Handler serving gateway.
func NewHandler(gateway *auth.BinaryGateway, opts ...HandlerOption) *Handler {
	h := &Handler{gateway: gateway}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// RegisterStorageRoutes mounts the storage endpoints on app.
func RegisterStorageRoutes(app fiber.Router, gateway *auth.BinaryGateway, opts ...HandlerOption) *Handler {
	h := NewHandler(gateway, opts...)
	app.Get("/storage/:id/:versionId?", h.Retrieve)
	if h.tokens != nil {
		app.Post("/storage", h.Upload)
	}
	return h
}

// Retrieve streams a binary to a signed request. Headers are committed
// only after the binary is authorized and loaded; from then on the body
// is streamed with the declared length so a client can tell a cut stream
// from a complete one.
func (h *Handler) Retrieve(c *fiber.Ctx) error {
	req := auth.RetrieveRequest{
		ID:        c.Params("id"),
		VersionID: c.Params("versionId"),
		Signature: c.Query("Signature"),
	}
	if req.Signature == "" {
		return unauthorized(c)
	}

	ctx := c.UserContext()
	binary, err := h.gateway.Open(ctx, req)
	if err != nil {
		h.gateway.Observe(ctx, nil, 0, err)
		return writeOutcome(c, err)
	}

	c.Set(fiber.HeaderContentType, auth.ContentTypeOf(binary))
	c.Status(fiber.StatusOK)

	pr, pw := io.Pipe()
	go func() {
		written, err := h.gateway.Stream(ctx, binary, pw)
		h.gateway.Observe(ctx, binary, written, err)
		pw.CloseWithError(err)
	}()

	size := -1
	if binary.Size > 0 {
		size = int(binary.Size)
	}
	return c.SendStream(pr, size)
}

// Upload stores the request body as a new Binary owned by the caller's
// profile.
func (h *Handler) Upload(c *fiber.Ctx) error {
	claims, err := h.authorize(c)
	if err != nil {
		return writeOutcome(c, err)
	}

	binary := &auth.Binary{
		ContentType:     c.Get(fiber.HeaderContentType),
		SecurityContext: claims.ProfileReference(),
	}
	if binary.ContentType == "" {
		binary.ContentType = auth.DefaultBinaryContentType
	}
	binary.GetMeta().Project = strings.TrimPrefix(claims.Project, "Project/")

	created, err := h.gateway.Store(c.UserContext(), binary, bytes.NewReader(c.Body()))
	if err != nil {
		return writeOutcome(c, err)
	}

	if h.signer != nil {
		location, err := h.signer.URL(h.baseURL, created)
		if err == nil {
			c.Set(fiber.HeaderLocation, location)
		} else if h.logger != nil {
			h.logger.Warn("failed to sign binary location", "id", created.ID, "error", err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *Handler) authorize(c *fiber.Ctx) (*auth.LoginClaims, error) {
	header := c.Get(fiber.HeaderAuthorization)
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, auth.NewUnauthorizedError()
	}
	return h.tokens.Validate(token)
}

func writeOutcome(c *fiber.Ctx, err error) error {
	status := auth.StatusForError(err)
	if status == fiber.StatusUnauthorized {
		return unauthorized(c)
	}
	return c.Status(status).JSON(auth.NewOperationOutcome(err))
}

// unauthorized answers 401 with an empty body. SendStatus would fill an
// empty body with the status text.
func unauthorized(c *fiber.Ctx) error {
	c.Status(fiber.StatusUnauthorized)
	c.Response().ResetBody()
	return nil
}
