// Package assistant coordinates the conversation flows: image upload, photo
// capture, and text chat. Each flow appends the user turn and a typing
// placeholder, awaits the backend, then replaces the placeholder with the
// result or an error message and fires the correlated notifications.
package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"greenguard/internal/api"
	"greenguard/internal/eventbus"
	"greenguard/internal/history"
	"greenguard/internal/notification"
	"greenguard/internal/transcript"
	logx "greenguard/pkg/logx"
)

// ErrBusy is returned when a flow is started while another is awaiting the
// backend. The UI disables inputs during a flow, so hitting this means the
// caller skipped that guard.
var ErrBusy = errors.New("assistant: a request is already in flight")

const (
	typingAnalyzing = "Analyzing image..."
	typingThinking  = "Thinking..."

	invalidFileMsg   = "Please upload a valid image file (JPG or PNG)."
	imageFailMsg     = "Failed to process the image. Please try again."
	captureFailMsg   = "Failed to process the captured image. Please try again."
	chatFailMsg      = "An unexpected error occurred. Please try again."
	capturedPhotoTag = "captured-image.jpg"

	suggestionDelay = 3 * time.Second
)

// Backend is the remote API surface the orchestrator needs.
// *api.Client implements it.
type Backend interface {
	Predict(ctx context.Context, filename string, image io.Reader) (*api.PredictResult, error)
	Chat(ctx context.Context, message string, history []api.ContextMessage) (string, error)
}

// Delayer schedules a one-shot callback. *schedule.Service implements it.
type Delayer interface {
	After(name string, delay time.Duration, fn func()) (cancel func())
}

// Orchestrator drives the conversation. Safe for concurrent use, though
// flows are serialized: a second submission while one is in flight fails
// with ErrBusy.
type Orchestrator struct {
	chat    *transcript.Store
	notes   *notification.Store
	actions *notification.Actions
	backend Backend
	delayer Delayer
	hist    history.Store // may be nil
	bus     eventbus.Bus  // may be nil
	log     logx.Logger

	now func() time.Time

	mu   sync.Mutex
	busy bool
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source. Tests use this.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithHistory attaches a detection-history store.
func WithHistory(st history.Store) Option {
	return func(o *Orchestrator) { o.hist = st }
}

// WithBus publishes "detection.saved" events for persisted detections.
func WithBus(b eventbus.Bus) Option {
	return func(o *Orchestrator) { o.bus = b }
}

func New(chat *transcript.Store, notes *notification.Store, actions *notification.Actions,
	backend Backend, delayer Delayer, log logx.Logger, opts ...Option) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	o := &Orchestrator{
		chat:    chat,
		notes:   notes,
		actions: actions,
		backend: backend,
		delayer: delayer,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UploadImage runs the image-analysis flow for a picked file. An invalid
// MIME type produces an inline error message and no network call.
func (o *Orchestrator) UploadImage(ctx context.Context, filename, mimeType string, image io.Reader) error {
	if !validImageType(mimeType) {
		o.chat.Append(transcript.Message{
			Role:    transcript.RoleBot,
			Content: invalidFileMsg,
			Status:  transcript.StatusError,
		})
		o.log.Debug("rejected upload", logx.String("mime", mimeType))
		return nil
	}
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()

	o.actions.Trigger(notification.ActionImageUpload, notification.ActionData{})
	return o.analyze(ctx, filename, image, imageFailMsg)
}

// CapturePhoto runs the image-analysis flow for a camera capture delivered
// as a base64 data URL. The capture has already happened by the time we are
// called, so a payload that fails to decode fails the flow like a backend
// error rather than being rejected up front.
func (o *Orchestrator) CapturePhoto(ctx context.Context, dataURL string) error {
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()

	o.actions.Trigger(notification.ActionPhotoCapture, notification.ActionData{})

	payload, mimeType, err := decodeDataURL(dataURL)
	if err == nil && !validImageType(mimeType) {
		err = errors.New("unsupported capture image type " + mimeType)
	}
	if err != nil {
		o.chat.Append(transcript.Message{Role: transcript.RoleUser, Image: capturedPhotoTag, At: o.now()})
		o.chat.Append(transcript.Message{Role: transcript.RoleBot, Content: typingAnalyzing, Status: transcript.StatusTyping})
		o.failFlow(captureFailMsg, true)
		o.log.Debug("rejected capture", logx.String("mime", mimeType), logx.Err(err))
		return err
	}
	return o.analyze(ctx, capturedPhotoTag, strings.NewReader(payload), captureFailMsg)
}

// analyze is the shared tail of both image flows: user turn, typing
// placeholder, backend call, result or error.
func (o *Orchestrator) analyze(ctx context.Context, imageRef string, image io.Reader, fallback string) error {
	snapshot := o.chatSnapshot()

	o.chat.Append(transcript.Message{Role: transcript.RoleUser, Image: imageRef, At: o.now()})
	o.chat.Append(transcript.Message{Role: transcript.RoleBot, Content: typingAnalyzing, Status: transcript.StatusTyping})

	res, err := o.backend.Predict(ctx, imageRef, image)
	if err != nil {
		o.failFlow(errorText(err, fallback), true)
		return err
	}

	o.chat.RemoveTyping()
	o.chat.Append(transcript.Message{
		Role:    transcript.RoleBot,
		Content: "Disease detected: " + res.Disease + "\n\n" + res.Explanation,
		At:      o.now(),
	})

	o.saveDetection(ctx, imageRef, res, snapshot)

	o.notes.Add(notification.Candidate{
		Title:   "Disease Detection Complete",
		Message: "Your crop image has been successfully analyzed.",
		Kind:    notification.KindSuccess,
	})
	o.actions.Trigger(notification.ActionGenerateResponse, notification.ActionData{})

	if res.Disease != "" {
		disease := res.Disease
		o.delayer.After("disease-suggestion", suggestionDelay, func() {
			o.actions.Trigger(notification.ActionDiseaseSuggestion, notification.ActionData{Disease: disease})
		})
	}
	return nil
}

// SendText runs the chat flow. Whitespace-only input is a no-op.
func (o *Orchestrator) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !o.acquire() {
		return ErrBusy
	}
	defer o.release()

	// The prior transcript rides along as conversation context; the turn
	// being sent is not part of it.
	priorCtx := o.chatSnapshot()

	o.chat.Append(transcript.Message{Role: transcript.RoleUser, Content: text, At: o.now()})
	o.chat.Append(transcript.Message{Role: transcript.RoleBot, Content: typingThinking, Status: transcript.StatusTyping})

	reply, err := o.backend.Chat(ctx, text, priorCtx)
	if err != nil {
		o.failFlow(errorText(err, chatFailMsg), false)
		return err
	}

	o.chat.RemoveTyping()
	o.chat.Append(transcript.Message{Role: transcript.RoleBot, Content: reply, At: o.now()})
	o.scanReply(reply)
	return nil
}

// Reset clears the transcript, e.g. when navigating back to the dashboard.
func (o *Orchestrator) Reset() {
	o.chat.Clear()
}

// failFlow replaces the typing placeholder with an error message and, for
// image flows, raises a Detection Failed notification.
func (o *Orchestrator) failFlow(msg string, imageFlow bool) {
	o.chat.RemoveTyping()
	o.chat.Append(transcript.Message{
		Role:    transcript.RoleBot,
		Content: msg,
		Status:  transcript.StatusError,
		At:      o.now(),
	})
	if imageFlow {
		o.notes.Add(notification.Candidate{
			Title:   "Detection Failed",
			Message: msg,
			Kind:    notification.KindError,
		})
	}
}

// scanReply raises follow-up notifications keyed off the assistant's text.
func (o *Orchestrator) scanReply(reply string) {
	if strings.Contains(reply, "treatment") || strings.Contains(reply, "recommendation") {
		o.notes.Add(notification.Candidate{
			Title:   "Treatment Recommendation",
			Message: "New treatment advice available for your crop",
			Kind:    notification.KindInfo,
		})
	}
	if strings.Contains(reply, "disease detected") || strings.Contains(reply, "infection") {
		o.notes.Add(notification.Candidate{
			Title:   "Disease Alert",
			Message: "Important information about detected crop disease",
			Kind:    notification.KindWarning,
		})
	}
}

func (o *Orchestrator) saveDetection(ctx context.Context, imageRef string, res *api.PredictResult, chat []api.ContextMessage) {
	if o.hist == nil {
		return
	}
	snapshot := make([]history.ChatMessage, 0, len(chat))
	for _, m := range chat {
		snapshot = append(snapshot, history.ChatMessage{Role: m.Type, Content: m.Content})
	}
	entry := history.Entry{
		ID:             uuid.NewString(),
		At:             o.now(),
		Image:          imageRef,
		Detection:      res.Disease,
		Explanation:    res.Explanation,
		Confidence:     res.Confidence,
		CropType:       res.CropType,
		CropConfidence: res.CropConfidence,
		ChatHistory:    snapshot,
	}
	if err := o.hist.Append(ctx, entry); err != nil {
		// history is best-effort; the analysis already succeeded
		o.log.Warn("saving detection history failed", logx.Err(err))
		return
	}
	if o.bus != nil {
		o.bus.Publish(eventbus.Event{Type: "detection.saved", Data: entry.ID})
	}
}

// chatSnapshot converts the transcript to backend context, skipping
// placeholders and error messages.
func (o *Orchestrator) chatSnapshot() []api.ContextMessage {
	msgs := o.chat.Messages()
	out := make([]api.ContextMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Status != transcript.StatusNone {
			continue
		}
		out = append(out, api.ContextMessage{Type: string(m.Role), Content: m.Content})
	}
	return out
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	return true
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

func validImageType(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/png", "image/jpg":
		return true
	}
	return false
}

// errorText picks the message to surface: the backend's own error text when
// it provided one, a generic per-flow fallback otherwise.
func errorText(err error, fallback string) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// decodeDataURL splits a "data:<mime>;base64,<payload>" capture into its
// raw bytes and MIME type.
func decodeDataURL(dataURL string) (payload, mimeType string, err error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", "", errors.New("not a data URL")
	}
	meta, b64, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", errors.New("malformed data URL")
	}
	mimeType, enc, _ := strings.Cut(meta, ";")
	if enc != "base64" {
		return "", "", errors.New("unsupported data URL encoding")
	}
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", "", err
	}
	return string(raw), mimeType, nil
}
