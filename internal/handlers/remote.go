package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/diarization-splitter/internal/logging"
	"github.com/codebuildervaibhav/diarization-splitter/internal/queue"
	"github.com/codebuildervaibhav/diarization-splitter/internal/types"
)

// resolveVideoJS returns the first playable <video> source on the page
const resolveVideoJS = `(() => {
	const v = document.querySelector('video');
	if (!v) return '';
	if (v.currentSrc) return v.currentSrc;
	if (v.src) return v.src;
	const s = v.querySelector('source[src]');
	return s ? s.src : '';
})()`

// RemoteHandler fetches videos embedded in web pages
type RemoteHandler struct {
	logger     zerolog.Logger
	workerPool *queue.WorkerPool
	httpClient *http.Client
	tempDir    string
	maxBytes   int64

	resolve func(ctx context.Context, pageURL string) (string, error)
	ytdlp   func(ctx context.Context, pageURL, outputPath string) error
}

// NewRemoteHandler creates a new remote page handler
func NewRemoteHandler(logger zerolog.Logger, workerPool *queue.WorkerPool, tempDir string, maxSizeMB int) *RemoteHandler {
	h := &RemoteHandler{
		logger:     logging.WithComponent(logger, "remote"),
		workerPool: workerPool,
		httpClient: http.DefaultClient,
		tempDir:    tempDir,
		maxBytes:   int64(maxSizeMB) * 1024 * 1024,
	}
	h.resolve = h.resolveWithChrome
	h.ytdlp = h.captureWithYtDlp
	return h
}

// Handle processes remote page requests
func (h *RemoteHandler) Handle(c *fiber.Ctx) error {
	var req SourceRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, 400, "Invalid request body", "ERR_INVALID_BODY")
	}

	segments, err := tableFromString(req.Diarization)
	if err != nil {
		return taxonomyError(c, err)
	}

	if req.URL == "" {
		return errorJSON(c, 400, "URL is required", "ERR_NO_URL")
	}
	if u, err := url.Parse(req.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errorJSON(c, 400, "URL must be an http(s) link", "ERR_INVALID_URL")
	}

	if req.Name == "" {
		req.Name = "remote_video"
	}

	jobID := uuid.New().String()
	tempPath := filepath.Join(h.tempDir, jobID+".download")

	job := queue.NewJob(jobID, req.Name, types.SourceRemote, "", segments)
	job.Fetch = func(ctx context.Context) (string, error) {
		if err := h.fetch(ctx, req.URL, tempPath); err != nil {
			return "", err
		}
		return tempPath, nil
	}

	if err := h.workerPool.Enqueue(job); err != nil {
		return errorJSON(c, fiber.StatusServiceUnavailable, err.Error(), "ERR_QUEUE_UNAVAILABLE")
	}

	return c.JSON(fiber.Map{
		"job_id":   jobID,
		"status":   types.StatusQueued,
		"segments": len(segments),
		"message":  "Remote video capture started (this may take a few minutes for long videos)",
	})
}

// fetch resolves the page's video with headless Chrome and downloads it,
// falling back to yt-dlp when no direct source can be found
func (h *RemoteHandler) fetch(ctx context.Context, pageURL, dst string) error {
	src, err := h.resolve(ctx, pageURL)
	if err == nil && isDownloadable(src) {
		h.logger.Info().Str("page", pageURL).Str("video", src).Msg("resolved video source")
		err = downloadTo(dst, h.maxBytes, func(w io.Writer) error {
			return h.download(ctx, src, w)
		})
		if err == nil {
			return nil
		}
	}
	if err == nil {
		err = fmt.Errorf("no direct video source found (got %q)", src)
	}
	if errors.Is(err, errTooLarge) {
		return err
	}

	h.logger.Warn().Err(err).Str("page", pageURL).Msg("direct capture failed, using yt-dlp")
	return h.ytdlp(ctx, pageURL, dst)
}

func (h *RemoteHandler) download(ctx context.Context, src string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("video download returned HTTP %d", resp.StatusCode)
	}
	return contextCopy(ctx, w, resp.Body)
}

// resolveWithChrome loads the page in headless Chrome and reads the
// <video> element's source URL
func (h *RemoteHandler) resolveWithChrome(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	ctx, cancel = context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	var src string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second), // let the player attach its source
		chromedp.Evaluate(resolveVideoJS, &src, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to inspect page: %w", err)
	}
	return strings.TrimSpace(src), nil
}

// captureWithYtDlp downloads the page's video with yt-dlp
func (h *RemoteHandler) captureWithYtDlp(ctx context.Context, pageURL, outputPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", "best[ext=mp4]/best",
		"--max-filesize", fmt.Sprintf("%d", h.maxBytes),
		"--no-playlist",
		"-o", outputPath,
		pageURL,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("yt-dlp failed: %w\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	h.logger.Info().Str("page", pageURL).Msg("video downloaded with yt-dlp")
	return nil
}

// isDownloadable reports whether src is a plain http(s) media URL
// (blob: and MediaSource URLs cannot be fetched directly)
func isDownloadable(src string) bool {
	u, err := url.Parse(src)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
