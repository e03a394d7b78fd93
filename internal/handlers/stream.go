package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
)

// StreamHandler pushes job progress over a WebSocket
type StreamHandler struct {
	logger     zerolog.Logger
	workerPool *queue.WorkerPool
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(logger zerolog.Logger, workerPool *queue.WorkerPool) *StreamHandler {
	return &StreamHandler{
		logger:     logging.WithComponent(logger, "stream"),
		workerPool: workerPool,
	}
}

// Upgrade rejects non-WebSocket requests and unknown jobs before the handshake
func (h *StreamHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if _, ok := h.workerPool.Get(c.Params("id")); !ok {
		return errorJSON(c, 404, "Job not found", "ERR_NOT_FOUND")
	}
	return c.Next()
}

// Handle sends the job's current state, then every progress update until
// the job finishes or the client goes away
func (h *StreamHandler) Handle(c *websocket.Conn) {
	defer c.Close()

	jobID := c.Params("id")
	updates, unsubscribe, ok := h.workerPool.Subscribe(jobID)
	if !ok {
		c.WriteJSON(fiber.Map{"error": "Job not found", "code": "ERR_NOT_FOUND"})
		return
	}
	defer unsubscribe()

	h.logger.Debug().Str("job_id", jobID).Msg("progress stream opened")

	if job, ok := h.workerPool.Get(jobID); ok {
		current := job.Progress
		current.Status = job.Status
		if err := c.WriteJSON(current); err != nil {
			return
		}
	}

	// Reads only detect the client closing the connection.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case progress, open := <-updates:
			if !open {
				if job, ok := h.workerPool.Get(jobID); ok {
					c.WriteJSON(fiber.Map{
						"job_id": job.ID,
						"status": job.Status,
						"error":  job.Error,
						"report": job.Report,
					})
				}
				return
			}
			if err := c.WriteJSON(progress); err != nil {
				h.logger.Debug().Err(err).Str("job_id", jobID).Msg("progress stream write failed")
				return
			}
		case <-closed:
			return
		}
	}
}
