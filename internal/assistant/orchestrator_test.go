package assistant

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"greenguard/internal/api"
	"greenguard/internal/eventbus"
	"greenguard/internal/history"
	"greenguard/internal/notification"
	"greenguard/internal/transcript"
	logx "greenguard/pkg/logx"
)

type fakeBackend struct {
	mu           sync.Mutex
	predictCalls int
	chatCalls    int
	lastImage    string
	lastChatCtx  []api.ContextMessage

	predictRes *api.PredictResult
	predictErr error
	chatReply  string
	chatErr    error
}

func (f *fakeBackend) Predict(ctx context.Context, filename string, image io.Reader) (*api.PredictResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.predictCalls++
	f.lastImage = filename
	io.Copy(io.Discard, image)
	return f.predictRes, f.predictErr
}

func (f *fakeBackend) Chat(ctx context.Context, message string, history []api.ContextMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastChatCtx = history
	return f.chatReply, f.chatErr
}

// fakeDelayer records scheduled callbacks so tests advance virtual time by
// firing them explicitly.
type fakeDelayer struct {
	mu      sync.Mutex
	pending []func()
	delays  []time.Duration
}

func (d *fakeDelayer) After(name string, delay time.Duration, fn func()) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pending = append(d.pending, fn)
	d.delays = append(d.delays, delay)
	return func() {}
}

func (d *fakeDelayer) fireAll() {
	d.mu.Lock()
	fns := d.pending
	d.pending = nil
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fixture struct {
	chat    *transcript.Store
	notes   *notification.Store
	backend Backend
	delayer *fakeDelayer
	clock   *testClock
	orch    *Orchestrator
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond) // keep notification IDs distinct
	return c.now
}

func newFixture(t *testing.T, backend Backend, opts ...Option) *fixture {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
	chat := transcript.NewStore(logx.Nop())
	notes := notification.NewStore(notification.StoreConfig{}, logx.Nop(), notification.WithClock(clock.Now))
	actions := notification.NewActions(notes, logx.Nop())
	delayer := &fakeDelayer{}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	orch := New(chat, notes, actions, backend, delayer, logx.Nop(), opts...)
	return &fixture{chat: chat, notes: notes, backend: backend, delayer: delayer, clock: clock, orch: orch}
}

func hasNotification(notes *notification.Store, title, contains string) bool {
	for _, r := range notes.Snapshot() {
		if r.Title == title && strings.Contains(r.Message, contains) {
			return true
		}
	}
	return false
}

func TestUploadImageSuccess(t *testing.T) {
	f := newFixture(t, &fakeBackend{predictRes: &api.PredictResult{
		Status:      "success",
		Disease:     "Leaf Blight",
		Explanation: "Fungal infection of the foliage.",
		Confidence:  0.92,
		CropType:    "maize",
	}})

	if err := f.orch.UploadImage(context.Background(), "leaf.png", "image/png", strings.NewReader("png bytes")); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	msgs := f.chat.Messages()
	if len(msgs) != 2 {
		t.Fatalf("transcript len=%d want 2: %+v", len(msgs), msgs)
	}
	if msgs[0].Role != transcript.RoleUser || msgs[0].Image != "leaf.png" {
		t.Fatalf("user message %+v", msgs[0])
	}
	if msgs[1].Role != transcript.RoleBot || !strings.HasPrefix(msgs[1].Content, "Disease detected: Leaf Blight") {
		t.Fatalf("bot message %+v", msgs[1])
	}
	if !strings.Contains(msgs[1].Content, "Fungal infection") {
		t.Fatalf("missing explanation: %q", msgs[1].Content)
	}

	if !hasNotification(f.notes, "Response Generated", "") {
		t.Fatal("missing generate_response notification")
	}
	if !hasNotification(f.notes, "Disease Detection Complete", "") {
		t.Fatal("missing detection-complete notification")
	}

	// The treatment suggestion lands only after the delayed trigger fires.
	if hasNotification(f.notes, "Treatment Suggestion", "Leaf Blight") {
		t.Fatal("suggestion fired before its delay")
	}
	if len(f.delayer.delays) != 1 || f.delayer.delays[0] != 3*time.Second {
		t.Fatalf("delays=%v want one 3s delay", f.delayer.delays)
	}
	f.delayer.fireAll()
	if !hasNotification(f.notes, "Treatment Suggestion", "Leaf Blight") {
		t.Fatal("missing disease_suggestion notification")
	}
}

func TestUploadImageRejectsBadType(t *testing.T) {
	backend := &fakeBackend{}
	f := newFixture(t, backend)

	if err := f.orch.UploadImage(context.Background(), "report.pdf", "application/pdf", strings.NewReader("%PDF")); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	msgs := f.chat.Messages()
	if len(msgs) != 1 || msgs[0].Status != transcript.StatusError {
		t.Fatalf("transcript %+v, want single error message", msgs)
	}
	if backend.predictCalls != 0 {
		t.Fatalf("predict called %d times for invalid file", backend.predictCalls)
	}
	if n := f.notes.Len(); n != 0 {
		t.Fatalf("notifications=%d want 0", n)
	}
}

func TestUploadImageBackendError(t *testing.T) {
	f := newFixture(t, &fakeBackend{predictErr: &api.Error{
		StatusCode: http.StatusBadRequest,
		Message:    "No image file provided",
	}})

	err := f.orch.UploadImage(context.Background(), "leaf.jpg", "image/jpeg", strings.NewReader("x"))
	if err == nil {
		t.Fatal("expected error")
	}

	msgs := f.chat.Messages()
	last := msgs[len(msgs)-1]
	if last.Status != transcript.StatusError || !strings.Contains(last.Content, "No image file provided") {
		t.Fatalf("last message %+v", last)
	}
	for _, m := range msgs {
		if m.Status == transcript.StatusTyping {
			t.Fatalf("typing placeholder survived: %+v", m)
		}
	}
	if !hasNotification(f.notes, "Detection Failed", "No image file provided") {
		t.Fatal("missing Detection Failed notification")
	}
}

func TestUploadImageNetworkErrorUsesFallbackText(t *testing.T) {
	f := newFixture(t, &fakeBackend{predictErr: errors.New("dial tcp: connection refused")})

	if err := f.orch.UploadImage(context.Background(), "leaf.jpg", "image/jpeg", strings.NewReader("x")); err == nil {
		t.Fatal("expected error")
	}

	msgs := f.chat.Messages()
	last := msgs[len(msgs)-1]
	if last.Content != "Failed to process the image. Please try again." {
		t.Fatalf("content=%q", last.Content)
	}
}

func TestUploadImagePersistsHistory(t *testing.T) {
	hist, err := history.Open(history.Config{Driver: "memory"}, logx.Nop())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	f := newFixture(t, &fakeBackend{predictRes: &api.PredictResult{
		Status: "success", Disease: "Rust", Explanation: "e", Confidence: 0.8, CropType: "wheat",
	}}, WithHistory(hist), WithBus(bus))

	if err := f.orch.UploadImage(context.Background(), "leaf.png", "image/png", strings.NewReader("x")); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}

	entries, err := hist.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries=%d want 1", len(entries))
	}
	e := entries[0]
	if e.ID == "" || e.Detection != "Rust" || e.CropType != "wheat" || e.Image != "leaf.png" {
		t.Fatalf("entry %+v", e)
	}

	select {
	case ev := <-events:
		if ev.Type != "detection.saved" || ev.Data != e.ID {
			t.Fatalf("event %+v", ev)
		}
	default:
		t.Fatal("no detection.saved event published")
	}
}

func TestCapturePhotoFlow(t *testing.T) {
	backend := &fakeBackend{predictRes: &api.PredictResult{
		Status: "success", Disease: "Mildew", Explanation: "e",
	}}
	f := newFixture(t, backend)

	dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg bytes"))
	if err := f.orch.CapturePhoto(context.Background(), dataURL); err != nil {
		t.Fatalf("CapturePhoto: %v", err)
	}

	if backend.lastImage != "captured-image.jpg" {
		t.Fatalf("image name=%q", backend.lastImage)
	}
	if !hasNotification(f.notes, "Photo Captured", "") {
		t.Fatal("missing photo_capture notification")
	}
}

func TestCapturePhotoDecodeFailureFailsFlow(t *testing.T) {
	for _, dataURL := range []string{
		"not a data url",
		"data:image/jpeg;base64,!!!not-base64!!!",
	} {
		backend := &fakeBackend{}
		f := newFixture(t, backend)

		if err := f.orch.CapturePhoto(context.Background(), dataURL); err == nil {
			t.Fatalf("CapturePhoto(%q): expected error", dataURL)
		}

		msgs := f.chat.Messages()
		if len(msgs) != 2 {
			t.Fatalf("%q: transcript %+v", dataURL, msgs)
		}
		if msgs[0].Role != transcript.RoleUser || msgs[0].Image != "captured-image.jpg" {
			t.Fatalf("%q: user turn %+v", dataURL, msgs[0])
		}
		if msgs[1].Status != transcript.StatusError || msgs[1].Content != "Failed to process the captured image. Please try again." {
			t.Fatalf("%q: bot turn %+v", dataURL, msgs[1])
		}
		if !hasNotification(f.notes, "Photo Captured", "") {
			t.Fatalf("%q: missing photo_capture notification", dataURL)
		}
		if !hasNotification(f.notes, "Detection Failed", "") {
			t.Fatalf("%q: missing Detection Failed notification", dataURL)
		}
		if backend.predictCalls != 0 {
			t.Fatalf("%q: predict called for undecodable capture", dataURL)
		}
	}
}

func TestSendTextSuccessAndKeywordScan(t *testing.T) {
	backend := &fakeBackend{chatReply: "Apply a copper-based treatment weekly."}
	f := newFixture(t, backend)

	// Existing conversation rides along as context.
	f.chat.Append(transcript.Message{Role: transcript.RoleUser, Content: "what is this?"})
	f.chat.Append(transcript.Message{Role: transcript.RoleBot, Content: "Disease detected: Rust"})

	if err := f.orch.SendText(context.Background(), "  how do I treat it?  "); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	if len(backend.lastChatCtx) != 2 || backend.lastChatCtx[0].Content != "what is this?" {
		t.Fatalf("chat context %+v", backend.lastChatCtx)
	}

	msgs := f.chat.Messages()
	if len(msgs) != 4 {
		t.Fatalf("transcript len=%d: %+v", len(msgs), msgs)
	}
	if msgs[2].Content != "how do I treat it?" {
		t.Fatalf("user turn %+v", msgs[2])
	}
	if msgs[3].Content != backend.chatReply {
		t.Fatalf("bot turn %+v", msgs[3])
	}
	if !hasNotification(f.notes, "Treatment Recommendation", "") {
		t.Fatal("missing treatment keyword notification")
	}
	if hasNotification(f.notes, "Disease Alert", "") {
		t.Fatal("unexpected disease keyword notification")
	}
}

func TestSendTextEmptyIsNoOp(t *testing.T) {
	backend := &fakeBackend{}
	f := newFixture(t, backend)

	if err := f.orch.SendText(context.Background(), "   \t  "); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if f.chat.Len() != 0 || backend.chatCalls != 0 {
		t.Fatal("empty input mutated state")
	}
}

func TestSendTextBackendErrorPayload(t *testing.T) {
	f := newFixture(t, &fakeBackend{chatErr: &api.Error{Message: "down"}})

	if err := f.orch.SendText(context.Background(), "hello"); err == nil {
		t.Fatal("expected error")
	}

	msgs := f.chat.Messages()
	last := msgs[len(msgs)-1]
	if last.Status != transcript.StatusError || !strings.Contains(last.Content, "down") {
		t.Fatalf("last message %+v", last)
	}
	for _, m := range msgs {
		if m.Status == transcript.StatusTyping {
			t.Fatalf("typing placeholder survived: %+v", m)
		}
	}
	// Chat failures stay inline; no toast notification.
	if n := f.notes.Len(); n != 0 {
		t.Fatalf("notifications=%d want 0", n)
	}
}

func TestBusyGuard(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &blockingBackend{release: release, started: started}
	f := newFixture(t, backend)

	done := make(chan error, 1)
	go func() {
		done <- f.orch.SendText(context.Background(), "first")
	}()
	<-started

	if err := f.orch.SendText(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err=%v want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}
	// The guard releases once the flow finishes.
	if err := f.orch.SendText(context.Background(), "third"); err != nil {
		t.Fatalf("third send: %v", err)
	}
}

type blockingBackend struct {
	once    sync.Once
	release chan struct{}
	started chan struct{}
}

func (b *blockingBackend) Predict(ctx context.Context, filename string, image io.Reader) (*api.PredictResult, error) {
	return nil, errors.New("not used")
}

func (b *blockingBackend) Chat(ctx context.Context, message string, history []api.ContextMessage) (string, error) {
	b.once.Do(func() {
		close(b.started)
		<-b.release
	})
	return "ok", nil
}
