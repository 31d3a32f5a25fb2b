package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"mediaconv/cmdrun"
	"mediaconv/config"
	"mediaconv/logging"
	"mediaconv/naming"
	"mediaconv/pipeline"
	"mediaconv/task"
	"mediaconv/throttle"
	"mediaconv/ytdlp"
)

// InfoFetcher looks up metadata of a remote resource.
type InfoFetcher interface {
	Info(ctx context.Context, timeout time.Duration, url string) (*ytdlp.Info, error)
}

// DurationProber reports the container duration of a local file.
type DurationProber interface {
	Duration(ctx context.Context, path string) (float64, bool)
}

type Handler struct {
	taskManager *task.Manager
	info        InfoFetcher
	probe       DurationProber
	cfg         *config.Config
	infoGroup   singleflight.Group
	uploads     *uploadSet
	log         zerolog.Logger
}

func NewHandler(tm *task.Manager, info InfoFetcher, probe DurationProber, cfg *config.Config) *Handler {
	return &Handler{
		taskManager: tm,
		info:        info,
		probe:       probe,
		cfg:         cfg,
		uploads:     newUploadSet(),
		log:         logging.WithComponent("api"),
	}
}

type InfoRequest struct {
	URL string `json:"url" form:"url"`
}

// handleInfo returns title, thumbnail, duration and the sorted format list
// of a remote resource. Concurrent lookups of the same URL share one call.
func (h *Handler) handleInfo(c *gin.Context) {
	var req InfoRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if err := validateRemoteURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	v, err, _ := h.infoGroup.Do(req.URL, func() (any, error) {
		return h.info.Info(ctx, h.cfg.InfoTimeout, req.URL)
	})
	if err != nil {
		h.log.Warn().Err(err).Str("url", req.URL).Msg("info lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load info: " + toolDiagnostic(err)})
		return
	}
	c.JSON(http.StatusOK, v.(*ytdlp.Info))
}

// multipartAllowance is the room left for boundaries and part headers on
// top of the file size limit.
const multipartAllowance = 64 << 10

// handleUpload stores a multipart "file" under a unique safe name in the
// storage root and reports how it was classified.
func (h *Handler) handleUpload(c *gin.Context) {
	// The body limit covers the multipart envelope; the file itself is held
	// to MaxUploadSize below.
	bodyLimit := h.cfg.MaxUploadSize + multipartAllowance
	if c.Request.ContentLength > bodyLimit {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, bodyLimit)

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "no file uploaded"})
		return
	}
	if fh.Size > h.cfg.MaxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file is too large"})
		return
	}

	name := uploadName(fh.Filename)
	dst := filepath.Join(h.cfg.StorageDir, name)
	if err := c.SaveUploadedFile(fh, dst); err != nil {
		h.log.Error().Err(err).Str("file", name).Msg("could not store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store file"})
		return
	}

	mt, err := mimetype.DetectFile(dst)
	if err != nil {
		_ = os.Remove(dst)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not read stored file"})
		return
	}
	mime := mt.String()
	isImage := strings.HasPrefix(mime, "image/")
	isVideo := strings.HasPrefix(mime, "video/")
	if !isImage && !isVideo && !strings.HasPrefix(mime, "audio/") {
		_ = os.Remove(dst)
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported media type %s", mt.String())})
		return
	}

	var duration *float64
	if !isImage {
		if d, ok := h.probe.Duration(c.Request.Context(), dst); ok {
			duration = &d
		}
	}

	h.uploads.add(name, mime)
	h.log.Info().Str("file", name).Str("mime", mime).Int64("size", fh.Size).Msg("upload stored")
	c.JSON(http.StatusOK, gin.H{
		"filename": name,
		"is_image": isImage,
		"is_video": isVideo,
		"duration": duration,
		"size":     fh.Size,
		"mime":     mime,
	})
}

// uploadName builds "<shortuuid>_<safe stem><ext>" from a client file name.
func uploadName(original string) string {
	base := filepath.Base(strings.ReplaceAll(original, "\\", "/"))
	ext := strings.ToLower(filepath.Ext(base))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if !safeExt(ext) {
		ext = ""
	}
	return shortuuid.New() + "_" + naming.SafeTitle(stem, naming.DefaultMaxLen) + ext
}

func safeExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 10 {
		return false
	}
	for _, r := range ext[1:] {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}

type StartRequest struct {
	URL          string   `json:"url" form:"url"`
	SrcFile      string   `json:"src_file" form:"src_file"`
	TargetFormat string   `json:"target_format" form:"target_format" binding:"required"`
	Title        string   `json:"title" form:"title"`
	Start        float64  `json:"start" form:"start"`
	End          *float64 `json:"end" form:"end"`
	Resolution   string   `json:"resolution" form:"resolution"`
	IncludeAudio bool     `json:"include_audio" form:"include_audio"`
}

// handleStart validates a conversion request and queues it.
func (h *Handler) handleStart(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !pipeline.SupportedTarget(req.TargetFormat) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unsupported target format %q", req.TargetFormat)})
		return
	}
	if req.Start < 0 || (req.End != nil && *req.End < 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must not be negative"})
		return
	}
	src, err := h.sourceOf(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	t, err := h.taskManager.Submit(src, task.Request{
		TargetExt:    pipeline.NormalizeExt(req.TargetFormat),
		Start:        req.Start,
		End:          req.End,
		Resolution:   req.Resolution,
		Title:        req.Title,
		IncludeAudio: req.IncludeAudio,
	})
	if err != nil && src.LocalFile != "" {
		h.uploads.add(src.LocalFile, src.MediaType)
	}
	switch {
	case errors.Is(err, task.ErrQueueFull), errors.Is(err, throttle.ErrBusy):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error().Err(err).Msg("could not create task")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"task_id": t.ID})
}

// sourceOf resolves the job input. An uploaded file takes precedence over a
// URL and is claimed for this request; only names minted by /upload qualify.
func (h *Handler) sourceOf(req StartRequest) (task.Source, error) {
	if req.SrcFile != "" {
		mime, ok := h.uploads.claim(req.SrcFile)
		if !ok {
			return task.Source{}, fmt.Errorf("source file %q not found or already in use", req.SrcFile)
		}
		if _, err := h.resolve(req.SrcFile); err != nil {
			return task.Source{}, fmt.Errorf("source file %q not found", req.SrcFile)
		}
		return task.Source{LocalFile: req.SrcFile, MediaType: mime}, nil
	}
	u := strings.TrimSpace(req.URL)
	if u == "" {
		return task.Source{}, errors.New("url or src_file is required")
	}
	if err := validateRemoteURL(u); err != nil {
		return task.Source{}, err
	}
	return task.Source{URL: u}, nil
}

func validateRemoteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q", raw)
	}
	return nil
}

type StatusResponse struct {
	Status       task.Status     `json:"status"`
	Message      string          `json:"message"`
	FilePath     *string         `json:"file_path"`
	IncludeAudio bool            `json:"include_audio"`
	AudioState   task.AudioState `json:"audio_state"`
	Degraded     bool            `json:"degraded"`
	DownloadURL  string          `json:"download_url,omitempty"`
}

func statusOf(t task.Task) StatusResponse {
	resp := StatusResponse{
		Status:       t.Status,
		Message:      t.Message,
		IncludeAudio: t.Request.IncludeAudio,
		AudioState:   t.AudioState,
		Degraded:     t.Degraded,
	}
	if t.FilePath != "" {
		fp := t.FilePath
		resp.FilePath = &fp
	}
	return resp
}

// handleStatus retrieves the status of a single task.
func (h *Handler) handleStatus(c *gin.Context) {
	t, found := h.taskManager.Get(c.Param("taskId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	resp := statusOf(t)
	resp.DownloadURL = h.downloadURL(c, t)
	c.JSON(http.StatusOK, resp)
}

type taskSummary struct {
	ID string `json:"task_id"`
	StatusResponse
}

// handleListTasks lists all known tasks, oldest first.
func (h *Handler) handleListTasks(c *gin.Context) {
	tasks := h.taskManager.List()
	out := make([]taskSummary, 0, len(tasks))
	for _, t := range tasks {
		resp := statusOf(t)
		resp.DownloadURL = h.downloadURL(c, t)
		out = append(out, taskSummary{ID: t.ID, StatusResponse: resp})
	}
	c.JSON(http.StatusOK, out)
}

// downloadURL is the absolute link to a finished task's file. BASE is the
// public root of the service; without it the request's own host is used.
func (h *Handler) downloadURL(c *gin.Context, t task.Task) string {
	if t.Status != task.StatusDone || t.FilePath == "" {
		return ""
	}
	base := h.cfg.BaseURL
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, c.Request.Host)
	}
	return strings.TrimSuffix(base, "/") + "/download-file/" + url.PathEscape(t.FilePath)
}

// handleDownload serves a stored file as an attachment.
func (h *Handler) handleDownload(c *gin.Context) {
	name := c.Param("filename")
	path, err := h.resolve(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	c.FileAttachment(path, filepath.Base(path))
}

// handleUploads serves a stored file inline.
func (h *Handler) handleUploads(c *gin.Context) {
	path, err := h.resolve(c.Param("filename"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
		return
	}
	c.File(path)
}

var errBadName = errors.New("invalid file name")

// resolve maps a client supplied file name to a regular file directly inside
// the storage root. Anything with a directory component is rejected.
func (h *Handler) resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.ContainsRune(name, 0) {
		return "", errBadName
	}
	root, err := filepath.Abs(h.cfg.StorageDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(root, name)
	if filepath.Dir(path) != root {
		return "", errBadName
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", errBadName
	}
	return path, nil
}

func (h *Handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// toolDiagnostic shortens an external tool failure to its first lines.
func toolDiagnostic(err error) string {
	var exitErr *cmdrun.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.TimedOut {
			return "timed out"
		}
		if d := cmdrun.Diagnostic(exitErr.Stderr, 3); d != "" {
			return d
		}
	}
	return err.Error()
}
