// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/editor"
	"github.com/bureau-foundation/canvasbridge/lib/editor/imagehost"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

var epoch = time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)

// recordingEditor logs the calls each handler makes, in order.
type recordingEditor struct {
	*imagehost.Host

	mutex sync.Mutex
	calls []string
}

func (e *recordingEditor) record(call string) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	e.calls = append(e.calls, call)
}

func (e *recordingEditor) HasActiveDocument() bool {
	e.record("HasActiveDocument")
	return e.Host.HasActiveDocument()
}

func (e *recordingEditor) Canvas() (editor.Canvas, error) {
	e.record("Canvas")
	return e.Host.Canvas()
}

func (e *recordingEditor) OpenDocument(path string, activate bool) (editor.DocumentID, error) {
	e.record("OpenDocument")
	return e.Host.OpenDocument(path, activate)
}

// panickingEditor fails every canvas read with a panic.
type panickingEditor struct {
	*imagehost.Host
}

func (panickingEditor) Canvas() (editor.Canvas, error) { panic("canvas unavailable") }

type fixture struct {
	directory *dropdir.Directory
	host      *imagehost.Host
	fake      *clock.FakeClock
	responder *Responder
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	t.Helper()
	directory, err := dropdir.Open(t.TempDir())
	if err != nil {
		t.Fatalf("dropdir.Open: %v", err)
	}
	host := imagehost.New()
	fake := clock.Fake(epoch)
	config := Config{
		Directory:            directory,
		Editor:               host,
		Clock:                fake,
		DisableNotify:        true,
		FallbackScanInterval: -1,
	}
	if configure != nil {
		configure(&config)
	}
	responder, err := New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{directory: directory, host: host, fake: fake, responder: responder}
}

func writeImage(t *testing.T, width, height int, fill color.NRGBA) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.png")
	if err := imaging.Save(imaging.New(width, height, fill), path); err != nil {
		t.Fatalf("imaging.Save: %v", err)
	}
	return path
}

func (f *fixture) writeRequest(t *testing.T, request wire.Request) wire.Name {
	t.Helper()
	data, err := wire.EncodeRequest(request)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	name := wire.Name{Kind: request.Kind, ID: request.ID, Suffix: wire.SuffixRequest}
	if err := f.directory.WriteFile(name.String(), data); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return name
}

func (f *fixture) readResponse(t *testing.T, request wire.Name) wire.Response {
	t.Helper()
	responseName := request
	responseName.Suffix = wire.SuffixResponse
	data, err := f.directory.ReadFile(responseName.String())
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}
	response, err := wire.DecodeResponse(responseName, data)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	return response
}

func (f *fixture) requireAbsent(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		present, err := f.directory.Exists(name)
		if err != nil {
			t.Fatalf("Exists(%s): %v", name, err)
		}
		if present {
			t.Errorf("%s still present", name)
		}
	}
}

func id(nodeID string, timestamp int64) wire.CorrelationID {
	return wire.CorrelationID{NodeID: nodeID, Timestamp: timestamp}
}

func TestNew_RequiresDirectoryAndEditor(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("New accepted an empty config")
	}
}

func TestStart_SweepsAndWritesPresence(t *testing.T) {
	f := newFixture(t, nil)
	stale := wire.Name{Kind: wire.KindFetch, ID: id("old", 1), Suffix: wire.SuffixRequest}
	orphan := wire.Name{Kind: wire.KindOpen, ID: id("old", 2), Suffix: wire.SuffixProcessing}
	answered := wire.Name{Kind: wire.KindCheckDocument, ID: id("old", 3), Suffix: wire.SuffixResponse}
	for _, name := range []wire.Name{stale, orphan, answered} {
		if err := f.directory.WriteFile(name.String(), []byte("x")); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}

	if err := f.responder.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	f.requireAbsent(t, stale.String(), orphan.String())
	if present, _ := f.directory.Exists(answered.String()); !present {
		t.Error("sweep removed a response the requester has not collected")
	}
	present, err := presence.Present(f.directory, presence.DefaultFileName)
	if err != nil || !present {
		t.Fatalf("presence flag present = %v, %v", present, err)
	}
	content, err := f.directory.ReadFile(presence.DefaultFileName)
	if err != nil {
		t.Fatalf("reading presence flag: %v", err)
	}
	info := presence.Parse(content)
	if info.Component != "canvasbridge-responder" || info.PID != os.Getpid() {
		t.Fatalf("presence info = %+v", info)
	}

	// Idempotent: a second Start does not sweep again.
	if err := f.directory.WriteFile(stale.String(), []byte("x")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := f.responder.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if present, _ := f.directory.Exists(stale.String()); !present {
		t.Fatal("second Start swept again")
	}
}

func TestScanAndDispatch_CheckDocument(t *testing.T) {
	f := newFixture(t, nil)
	request := f.writeRequest(t, wire.Request{Kind: wire.KindCheckDocument, ID: id("n1", 100)})

	report := f.responder.ScanAndDispatch()
	if report.Handled != 1 {
		t.Fatalf("report = %+v, want one handled", report)
	}
	response := f.readResponse(t, request)
	if !response.Succeeded() || response.HasActiveDocument {
		t.Fatalf("response = %+v, want success without a document", response)
	}
	f.requireAbsent(t, request.String(), request.WithSuffix(wire.SuffixProcessing))

	if _, err := f.host.Load(writeImage(t, 2, 2, color.NRGBA{A: 255})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	request = f.writeRequest(t, wire.Request{Kind: wire.KindCheckDocument, ID: id("n1", 101)})
	f.responder.ScanAndDispatch()
	if response := f.readResponse(t, request); !response.HasActiveDocument {
		t.Fatal("has_active_document = false with an open document")
	}
}

func TestScanAndDispatch_Fetch(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.host.Load(writeImage(t, 4, 2, color.NRGBA{R: 200, G: 100, B: 50, A: 255})); err != nil {
		t.Fatalf("Load: %v", err)
	}

	request := f.writeRequest(t, wire.Request{Kind: wire.KindFetch, ID: id("n1", 200)})
	f.responder.ScanAndDispatch()
	response := f.readResponse(t, request)
	if !response.Succeeded() {
		t.Fatalf("fetch failed: %s", response.Message)
	}
	if response.MaskPath != "" {
		t.Fatalf("mask_path = %q without a selection", response.MaskPath)
	}
	if response.ImagePath != f.directory.Join(ExportFileName(request.ID)) {
		t.Fatalf("image_path = %q", response.ImagePath)
	}
	exported, err := imaging.Open(response.ImagePath)
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	if bounds := exported.Bounds(); bounds.Dx() != 4 || bounds.Dy() != 2 {
		t.Fatalf("export bounds = %v", bounds)
	}
	if got := color.NRGBAModel.Convert(exported.At(1, 1)).(color.NRGBA); got != (color.NRGBA{R: 200, G: 100, B: 50, A: 255}) {
		t.Fatalf("export pixel = %v", got)
	}

	mask := image.NewGray(image.Rect(0, 0, 4, 2))
	mask.SetGray(0, 0, color.Gray{Y: 255})
	if err := f.host.SetSelection(mask); err != nil {
		t.Fatalf("SetSelection: %v", err)
	}
	request = f.writeRequest(t, wire.Request{Kind: wire.KindFetch, ID: id("n1", 201)})
	f.responder.ScanAndDispatch()
	response = f.readResponse(t, request)
	if response.MaskPath != f.directory.Join(MaskFileName(request.ID)) {
		t.Fatalf("mask_path = %q", response.MaskPath)
	}
	exportedMask, err := imaging.Open(response.MaskPath)
	if err != nil {
		t.Fatalf("opening mask export: %v", err)
	}
	if gray := color.GrayModel.Convert(exportedMask.At(0, 0)).(color.Gray); gray.Y != 255 {
		t.Fatalf("mask pixel = %v", gray)
	}
}

func TestScanAndDispatch_FetchWithoutDocumentFails(t *testing.T) {
	f := newFixture(t, nil)
	request := f.writeRequest(t, wire.Request{Kind: wire.KindFetch, ID: id("n1", 300)})

	f.responder.ScanAndDispatch()
	response := f.readResponse(t, request)
	if response.Succeeded() || response.Message == "" {
		t.Fatalf("response = %+v, want failure with a message", response)
	}
	f.requireAbsent(t, request.String(), request.WithSuffix(wire.SuffixProcessing))
}

func TestScanAndDispatch_HandlerPanicBecomesFailure(t *testing.T) {
	host := imagehost.New()
	f := newFixture(t, func(config *Config) { config.Editor = panickingEditor{host} })
	// Fetch only reaches Canvas with an active document.
	if _, err := host.Load(writeImage(t, 2, 2, color.NRGBA{A: 255})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	request := f.writeRequest(t, wire.Request{Kind: wire.KindFetch, ID: id("n1", 400)})

	f.responder.ScanAndDispatch()
	response := f.readResponse(t, request)
	if response.Succeeded() {
		t.Fatal("panicking handler reported success")
	}

	// The responder keeps serving.
	request = f.writeRequest(t, wire.Request{Kind: wire.KindCheckDocument, ID: id("n1", 401)})
	f.responder.ScanAndDispatch()
	if response := f.readResponse(t, request); !response.HasActiveDocument {
		t.Fatal("check_document after a panic did not succeed")
	}
}

func TestScanAndDispatch_KindOrder(t *testing.T) {
	recorder := &recordingEditor{Host: imagehost.New()}
	f := newFixture(t, func(config *Config) { config.Editor = recorder })
	imagePath := writeImage(t, 2, 2, color.NRGBA{G: 255, A: 255})

	// Written in reverse of the dispatch order.
	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("n3", 3), Open: &wire.OpenPayload{
		ImagePath: imagePath, LayerPosition: wire.LayerNewDocument, Alignment: wire.AlignCenter,
	}})
	f.writeRequest(t, wire.Request{Kind: wire.KindFetch, ID: id("n2", 2)})
	f.writeRequest(t, wire.Request{Kind: wire.KindCheckDocument, ID: id("n1", 1)})

	report := f.responder.ScanAndDispatch()
	if report.Handled != 3 {
		t.Fatalf("report = %+v, want three handled", report)
	}
	want := []string{"HasActiveDocument", "HasActiveDocument", "OpenDocument"}
	if !slices.Equal(recorder.calls, want) {
		t.Fatalf("editor calls = %v, want %v", recorder.calls, want)
	}
}

func TestScanAndDispatch_DuplicateOpenSuppressed(t *testing.T) {
	f := newFixture(t, nil)
	imagePath := writeImage(t, 2, 2, color.NRGBA{B: 255, A: 255})
	open := wire.Request{Kind: wire.KindOpen, ID: id("send", 500), Open: &wire.OpenPayload{
		ImagePath: imagePath, LayerPosition: wire.LayerNewDocument, Alignment: wire.AlignCenter, AutoOpen: true,
	}}

	request := f.writeRequest(t, open)
	f.responder.ScanAndDispatch()
	if !f.responder.SeenOpen(request.String()) {
		t.Fatal("SeenOpen = false after handling")
	}
	f.requireAbsent(t, request.String(), request.WithSuffix(wire.SuffixResponse))

	// The same request file reappears.
	f.writeRequest(t, open)
	report := f.responder.ScanAndDispatch()
	if report.Duplicates != 1 || report.Handled != 0 {
		t.Fatalf("report = %+v, want one duplicate", report)
	}
	if got := f.host.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want 1", got)
	}
	if got := f.host.ActivationCount(); got != 1 {
		t.Fatalf("ActivationCount = %d, want 1", got)
	}
	f.requireAbsent(t, request.String(), request.WithSuffix(wire.SuffixProcessing))
}

func TestScanAndDispatch_DuplicateOpenWithReply(t *testing.T) {
	f := newFixture(t, nil)
	open := wire.Request{Kind: wire.KindOpen, ID: id("send", 600), Open: &wire.OpenPayload{
		ImagePath:     writeImage(t, 2, 2, color.NRGBA{A: 255}),
		LayerPosition: wire.LayerNewDocument,
		Alignment:     wire.AlignCenter,
		Reply:         true,
	}}

	request := f.writeRequest(t, open)
	f.responder.ScanAndDispatch()
	first := f.readResponse(t, request)
	if !first.Opened || first.Duplicate {
		t.Fatalf("first response = %+v", first)
	}
	if err := f.directory.Remove(request.WithSuffix(wire.SuffixResponse)); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	f.writeRequest(t, open)
	f.responder.ScanAndDispatch()
	second := f.readResponse(t, request)
	if !second.Opened || !second.Duplicate {
		t.Fatalf("duplicate response = %+v, want opened and duplicate", second)
	}
	if got := f.host.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want 1", got)
	}
}

func TestScanAndDispatch_ImageAlreadyOpen(t *testing.T) {
	f := newFixture(t, nil)
	imagePath := writeImage(t, 2, 2, color.NRGBA{A: 255})
	payload := &wire.OpenPayload{ImagePath: imagePath, LayerPosition: wire.LayerNewDocument, Alignment: wire.AlignCenter, Reply: true}

	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 700), Open: payload})
	f.responder.ScanAndDispatch()
	request := f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 701), Open: payload})
	f.responder.ScanAndDispatch()

	response := f.readResponse(t, request)
	if !response.Duplicate {
		t.Fatalf("response = %+v, want duplicate for an already open image", response)
	}
	if got := f.host.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want 1", got)
	}

	// Once the document is closed, the image opens again.
	f.host.Close(f.host.Documents()[0].ID)
	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 702), Open: payload})
	f.responder.ScanAndDispatch()
	if got := f.host.OpenCount(); got != 2 {
		t.Fatalf("OpenCount after close = %d, want 2", got)
	}
}

func TestScanAndDispatch_OpenTopOfCurrent(t *testing.T) {
	f := newFixture(t, nil)
	layerPath := writeImage(t, 2, 2, color.NRGBA{R: 255, A: 255})
	payload := &wire.OpenPayload{ImagePath: layerPath, LayerPosition: wire.LayerTopOfCurrent, Alignment: wire.AlignTopLeft}

	// No document: falls back to opening one.
	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 800), Open: payload})
	f.responder.ScanAndDispatch()
	if got := f.host.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want fallback open", got)
	}

	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 801), Open: payload})
	f.responder.ScanAndDispatch()
	documents := f.host.Documents()
	if len(documents) != 1 || len(documents[0].Layers) != 2 {
		t.Fatalf("documents = %+v, want one document with two layers", documents)
	}
}

func TestScanAndDispatch_OpenMissingImageFails(t *testing.T) {
	f := newFixture(t, nil)
	request := f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 900), Open: &wire.OpenPayload{
		ImagePath:     filepath.Join(t.TempDir(), "missing.png"),
		LayerPosition: wire.LayerNewDocument,
		Alignment:     wire.AlignCenter,
		Reply:         true,
	}})

	f.responder.ScanAndDispatch()
	if response := f.readResponse(t, request); response.Succeeded() {
		t.Fatal("open of a missing image succeeded")
	}
	if !f.responder.SeenOpen(request.String()) {
		t.Fatal("failed open not recorded")
	}
}

func TestScanAndDispatch_MalformedOpenBody(t *testing.T) {
	f := newFixture(t, nil)
	name := wire.Name{Kind: wire.KindOpen, ID: id("send", 950), Suffix: wire.SuffixRequest}
	if err := f.directory.WriteFile(name.String(), []byte("{not json")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f.responder.ScanAndDispatch()
	f.requireAbsent(t, name.String(), name.WithSuffix(wire.SuffixProcessing), name.WithSuffix(wire.SuffixResponse))
	if !f.responder.SeenOpen(name.String()) {
		t.Fatal("malformed open not recorded")
	}
}

func TestOpen_DeferredPrepareDocument(t *testing.T) {
	f := newFixture(t, nil)
	f.writeRequest(t, wire.Request{Kind: wire.KindOpen, ID: id("send", 1000), Open: &wire.OpenPayload{
		ImagePath: writeImage(t, 2, 2, color.NRGBA{A: 255}), LayerPosition: wire.LayerNewDocument, Alignment: wire.AlignCenter,
	}})
	f.responder.ScanAndDispatch()

	if got := f.fake.PendingCount(); got != 1 {
		t.Fatalf("pending timers = %d, want the layer setup", got)
	}
	if f.host.Documents()[0].Prepared {
		t.Fatal("document prepared before the delay")
	}

	f.fake.Advance(DefaultLayerSetupDelay - time.Millisecond)
	f.responder.drain()
	if f.host.Documents()[0].Prepared {
		t.Fatal("document prepared early")
	}

	f.fake.Advance(time.Millisecond)
	f.responder.drain()
	if !f.host.Documents()[0].Prepared {
		t.Fatal("document not prepared after the delay")
	}
}

func TestOnDirectoryChanged_Debounces(t *testing.T) {
	f := newFixture(t, nil)
	var scans int
	f.responder.afterScan = func(ScanReport) { scans++ }

	for range 3 {
		f.responder.OnDirectoryChanged()
	}
	if got := f.fake.PendingCount(); got != 1 {
		t.Fatalf("pending timers = %d, want one coalesced scan", got)
	}

	f.fake.Advance(DefaultDebounce - time.Millisecond)
	f.responder.drain()
	if scans != 0 {
		t.Fatalf("scanned %d times before the debounce elapsed", scans)
	}

	f.fake.Advance(time.Millisecond)
	f.responder.drain()
	if scans != 1 {
		t.Fatalf("scans = %d, want 1", scans)
	}

	// A change after the scan arms a new one.
	f.responder.OnDirectoryChanged()
	f.fake.Advance(DefaultDebounce)
	f.responder.drain()
	if scans != 2 {
		t.Fatalf("scans = %d, want 2", scans)
	}
}

func TestStopTimers(t *testing.T) {
	f := newFixture(t, nil)
	f.responder.OnDirectoryChanged()
	f.responder.afterDelay(time.Second, func() { t.Error("stopped task ran") })

	f.responder.stopTimers()
	if got := f.fake.PendingCount(); got != 0 {
		t.Fatalf("pending timers = %d after stop", got)
	}
	f.fake.Advance(time.Minute)
	f.responder.drain()
}
