package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/riscvbooks/eventrelay/internal/admission"
	"github.com/riscvbooks/eventrelay/internal/event"
	"github.com/riscvbooks/eventrelay/internal/files"
	"github.com/riscvbooks/eventrelay/internal/relay"
	"github.com/riscvbooks/eventrelay/internal/telemetry"
)

const maxUploadBytes = 32 << 20

var (
	errMissingPipeline   = errors.New("admission pipeline dependency required")
	errMissingDispatcher = errors.New("relay dispatcher dependency required")
	errMissingFiles      = errors.New("file storage dependency required")
)

type Dependencies struct {
	Pipeline   *admission.Pipeline
	Dispatcher *relay.Dispatcher
	Files      files.Storage
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Pipeline == nil {
		return nil, errMissingPipeline
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}
	if deps.Files == nil {
		return nil, errMissingFiles
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		pipeline:   deps.Pipeline,
		dispatcher: deps.Dispatcher,
		files:      deps.Files,
		metrics:    deps.Metrics,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router.GET("/ws", handler.handleWebsocket)
	router.POST("/files", handler.handleFileUpload)
	router.GET("/files/:name", handler.handleFileDownload)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}

type httpHandler struct {
	pipeline   *admission.Pipeline
	dispatcher *relay.Dispatcher
	files      files.Storage
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func (h *httpHandler) handleWebsocket(c *gin.Context) {
	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := newWSConn(socket, h.logger)
	h.metrics.ConnectionsChanged(1)
	h.logger.Debug("websocket connected", zap.String("connection_id", conn.ID()))

	// The request context is canceled as soon as this handler returns,
	// but the connection outlives the handler. Detach so dispatched
	// operations are not aborted mid-flight.
	ctx := context.WithoutCancel(c.Request.Context())

	go conn.writePump()
	go func() {
		conn.readPump(ctx, h.dispatcher)
		h.metrics.ConnectionsChanged(-1)
		h.logger.Debug("websocket disconnected", zap.String("connection_id", conn.ID()))
	}()
}

// handleFileUpload accepts a multipart form with an "event" field holding
// the signed file-create event and a "file" part holding the bytes. The
// signed data bag must carry a "sha256" digest of the uploaded bytes.
func (h *httpHandler) handleFileUpload(c *gin.Context) {
	var e event.Event
	eventField := c.PostForm("event")
	if eventField == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing event field"})
		return
	}
	if err := json.Unmarshal([]byte(eventField), &e); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fileHeader.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	part, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer part.Close()
	raw, err := io.ReadAll(io.LimitReader(part, maxUploadBytes+1))
	if err != nil || int64(len(raw)) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}

	storedName, admErr := h.pipeline.AdmitFile(c.Request.Context(), &e, raw)
	if admErr != nil {
		c.JSON(httpStatus(admErr.Code), gin.H{"error": admErr.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": storedName})
}

func (h *httpHandler) handleFileDownload(c *gin.Context) {
	path, err := h.files.Resolve(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.File(path)
}

// httpStatus maps admission result codes onto HTTP statuses. The codes
// already follow HTTP semantics, so most pass through unchanged.
func httpStatus(code int) int {
	if code >= 200 && code < 600 {
		return code
	}
	return http.StatusInternalServerError
}
