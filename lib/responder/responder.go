// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/dirwatch"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/editor"
	"github.com/bureau-foundation/canvasbridge/lib/pathmap"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// Defaults for the zero values of Config.
const (
	DefaultDebounce             = 300 * time.Millisecond
	DefaultFallbackScanInterval = 2 * time.Second
	DefaultLayerSetupDelay      = 2 * time.Second
)

// Config configures a Responder.
type Config struct {
	// Directory is the shared directory. Required.
	Directory *dropdir.Directory

	// Editor is the host editor. Required.
	Editor editor.Editor

	// PeerPaths translates paths inside open requests from the
	// requester's namespace into this host's. Nil means both hosts
	// share a namespace.
	PeerPaths *pathmap.Translator

	// Clock drives the debounce, the fallback tick and deferred layer
	// setup. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives protocol logs. Nil discards them.
	Logger *slog.Logger

	// Debounce is the delay between a directory change and the scan
	// it triggers. Zero means DefaultDebounce.
	Debounce time.Duration

	// FallbackScanInterval is the period of the change-independent
	// rescan. Zero means DefaultFallbackScanInterval; negative disables
	// it.
	FallbackScanInterval time.Duration

	// DisableNotify skips kernel change notification. With the fallback
	// also disabled, nothing watches the directory and scans happen
	// only through OnDirectoryChanged.
	DisableNotify bool

	// LayerSetupDelay is how long after opening a document PrepareDocument
	// runs. Zero means DefaultLayerSetupDelay.
	LayerSetupDelay time.Duration

	// PresenceFileName names the presence flag. Empty means
	// presence.DefaultFileName.
	PresenceFileName string

	// Presence is written into the flag. Empty fields are filled from
	// the process.
	Presence presence.Info
}

// ScanReport summarizes one ScanAndDispatch pass.
type ScanReport struct {
	// Handled counts requests claimed and dispatched.
	Handled int

	// Lost counts requests that vanished before they could be claimed.
	Lost int

	// Duplicates counts open requests dropped by the seen-set guard.
	Duplicates int

	// Errors counts listing and claim failures other than a lost race.
	Errors int
}

// Responder is the editor-side protocol endpoint.
type Responder struct {
	directory *dropdir.Directory
	editor    editor.Editor
	peerPaths *pathmap.Translator
	clock     clock.Clock
	logger    *slog.Logger
	config    Config

	mutex       sync.Mutex
	started     bool
	tasks       []func()
	scanPending bool
	scanTimer   *clock.Timer

	// layerTimers holds pending deferred layer setups by sequence
	// number so shutdown can stop them.
	layerTimers   map[int]*clock.Timer
	layerSequence int

	// seenOpen maps handled open request file names to whether the
	// open succeeded. Guarded by mutex; read from tests and the loop.
	seenOpen map[string]bool

	wake chan struct{}

	// opened maps local image paths to the documents opened for them.
	// Loop goroutine only.
	opened map[string]editor.DocumentID

	// afterScan is called at the end of every ScanAndDispatch. Tests
	// use it to wait for scans.
	afterScan func(ScanReport)
}

// New validates config and returns a Responder.
func New(config Config) (*Responder, error) {
	var errs []error
	if config.Directory == nil {
		errs = append(errs, errors.New("responder: Directory is required"))
	}
	if config.Editor == nil {
		errs = append(errs, errors.New("responder: Editor is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	if config.PeerPaths == nil {
		config.PeerPaths = pathmap.Identity()
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.FallbackScanInterval == 0 {
		config.FallbackScanInterval = DefaultFallbackScanInterval
	}
	if config.LayerSetupDelay <= 0 {
		config.LayerSetupDelay = DefaultLayerSetupDelay
	}
	if config.PresenceFileName == "" {
		config.PresenceFileName = presence.DefaultFileName
	}
	if config.Presence.Component == "" {
		config.Presence.Component = "canvasbridge-responder"
	}
	if config.Presence.PID == 0 {
		config.Presence.PID = os.Getpid()
	}

	return &Responder{
		directory: config.Directory,
		editor:    config.Editor,
		peerPaths: config.PeerPaths,
		clock:     config.Clock,
		logger:    config.Logger.With("directory", config.Directory.Path()),
		config:    config,
		seenOpen:  make(map[string]bool),
		wake:      make(chan struct{}, 1),
		opened:    make(map[string]editor.DocumentID),

		layerTimers: make(map[int]*clock.Timer),
	}, nil
}

// Start sweeps requests left from a previous session and writes the
// presence flag. Run calls it when it has not been called yet.
func (r *Responder) Start() error {
	r.mutex.Lock()
	if r.started {
		r.mutex.Unlock()
		return nil
	}
	r.started = true
	r.mutex.Unlock()

	report, err := r.directory.Sweep()
	if err != nil {
		return fmt.Errorf("sweeping stale requests: %w", err)
	}
	if report.Requests+report.Processing+report.Temporary > 0 {
		r.logger.Info("removed stale files from a previous session",
			"requests", report.Requests,
			"processing", report.Processing,
			"temporary", report.Temporary,
		)
	}
	for _, fileName := range report.Failed {
		r.logger.Warn("could not remove stale file", "file", fileName)
	}

	info := r.config.Presence
	if info.StartedAt.IsZero() {
		info.StartedAt = r.clock.Now()
	}
	if err := presence.Write(r.directory, r.config.PresenceFileName, info); err != nil {
		return err
	}
	r.logger.Info("responder started", "presence_file", r.config.PresenceFileName)
	return nil
}

// Run starts the responder, watches the directory and runs the event
// loop until ctx is done. Returns nil on cancellation.
func (r *Responder) Run(ctx context.Context) error {
	if err := r.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	watchErrors := make(chan error, 1)
	var watchers sync.WaitGroup
	if !r.config.DisableNotify || r.config.FallbackScanInterval > 0 {
		fallback := r.config.FallbackScanInterval
		if fallback < 0 {
			fallback = 0
		}
		watchers.Add(1)
		go func() {
			defer watchers.Done()
			watchErrors <- dirwatch.Watch(ctx, r.directory.Path(), dirwatch.Options{
				Clock:            r.clock,
				Logger:           r.logger,
				FallbackInterval: fallback,
				Filter:           isRequestFile,
				DisableNotify:    r.config.DisableNotify,
			}, r.OnDirectoryChanged)
		}()
	}
	defer watchers.Wait()
	defer r.stopTimers()

	// Catch requests written between the sweep and the watch.
	r.OnDirectoryChanged()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErrors:
			if err != nil {
				return err
			}
		case <-r.wake:
			r.drain()
		}
	}
}

// OnDirectoryChanged arms the debounce timer. Calls while a scan is
// already pending are absorbed by it. Safe from any goroutine.
func (r *Responder) OnDirectoryChanged() {
	r.mutex.Lock()
	if r.scanPending {
		r.mutex.Unlock()
		return
	}
	r.scanPending = true
	r.mutex.Unlock()

	fired := false
	timer := r.clock.AfterFunc(r.config.Debounce, func() {
		r.mutex.Lock()
		fired = true
		r.scanPending = false
		r.scanTimer = nil
		r.mutex.Unlock()
		r.post(func() { r.ScanAndDispatch() })
	})

	r.mutex.Lock()
	if !fired {
		r.scanTimer = timer
	}
	r.mutex.Unlock()
}

// SeenOpen reports whether an open request with this file name (the
// .request name) has been handled in this process.
func (r *Responder) SeenOpen(requestFileName string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	_, seen := r.seenOpen[requestFileName]
	return seen
}

// ScanAndDispatch handles every request currently in the directory, in
// kind priority order. It runs on the event loop; tests may call it
// directly when no loop is running.
func (r *Responder) ScanAndDispatch() ScanReport {
	var report ScanReport
	for _, kind := range wire.DispatchOrder {
		names, err := r.directory.List(kind, wire.SuffixRequest)
		if err != nil {
			r.logger.Error("listing requests", "kind", kind, "error", err)
			report.Errors++
			continue
		}
		for _, name := range names {
			r.scanOne(name, &report)
		}
	}
	if r.afterScan != nil {
		r.afterScan(report)
	}
	return report
}

func (r *Responder) scanOne(name wire.Name, report *ScanReport) {
	logger := callLogger(r.logger, name)

	duplicate := name.Kind == wire.KindOpen && r.SeenOpen(name.String())

	claimed, ok, err := r.directory.Claim(name)
	if err != nil {
		logger.Error("claiming request", "error", err)
		report.Errors++
		return
	}
	if !ok {
		logger.Debug("request already claimed or withdrawn")
		report.Lost++
		return
	}

	if duplicate {
		report.Duplicates++
		r.answerDuplicateOpen(name, claimed, logger)
		return
	}
	report.Handled++
	r.Dispatch(claimed)
}

// Dispatch handles one claimed request: parse, run the handler, write
// the response, delete the claimed file. Handler failures and panics
// become failure responses.
func (r *Responder) Dispatch(claimed dropdir.ClaimedFile) {
	request := claimed.Name
	request.Suffix = wire.SuffixRequest
	logger := callLogger(r.logger, claimed.Name)

	defer func() {
		if err := r.directory.Remove(claimed.FileName()); err != nil {
			logger.Warn("removing claimed request", "error", err)
		}
	}()

	response, reply := r.handle(request, claimed, logger)
	if !reply {
		return
	}
	r.writeResponse(request, response, logger)
}

// handle decodes and runs the request. reply is false for open
// requests that did not ask for an answer, and for open bodies that
// cannot be decoded.
func (r *Responder) handle(name wire.Name, claimed dropdir.ClaimedFile, logger *slog.Logger) (response wire.Response, reply bool) {
	response = wire.Response{Kind: name.Kind, ID: name.ID}
	fail := func(err error) (wire.Response, bool) {
		response.Status = wire.StatusFailure
		response.Message = err.Error()
		return response, true
	}

	data, err := r.directory.ReadFile(claimed.FileName())
	if err != nil {
		logger.Error("reading claimed request", "error", err)
		return fail(fmt.Errorf("reading request: %w", err))
	}
	request, err := wire.DecodeRequest(name, data)
	if err != nil {
		logger.Error("decoding request", "error", err)
		if name.Kind == wire.KindOpen {
			r.markOpen(name, false)
			return response, false
		}
		return fail(err)
	}

	reply = request.Kind != wire.KindOpen || request.Open.Reply
	err = r.guard(logger, func() error {
		var handlerErr error
		switch request.Kind {
		case wire.KindCheckDocument:
			response.HasActiveDocument = r.editor.HasActiveDocument()
		case wire.KindFetch:
			response.ImagePath, response.MaskPath, handlerErr = r.handleFetch(request.ID)
		case wire.KindOpen:
			response.Opened, response.Duplicate, handlerErr = r.handleOpen(request.Open, logger)
			r.markOpen(name, handlerErr == nil)
		}
		return handlerErr
	})
	if err != nil {
		logger.Warn("request failed", "error", err)
		return fail(err)
	}

	response.Status = wire.StatusSuccess
	logger.Info("request handled")
	return response, reply
}

// guard runs handler and converts a panic into an error.
func (r *Responder) guard(logger *slog.Logger, handler func() error) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Error("handler panicked", "panic", recovered)
			err = fmt.Errorf("handler panicked: %v", recovered)
		}
	}()
	return handler()
}

func (r *Responder) answerDuplicateOpen(name wire.Name, claimed dropdir.ClaimedFile, logger *slog.Logger) {
	defer func() {
		if err := r.directory.Remove(claimed.FileName()); err != nil {
			logger.Warn("removing duplicate open request", "error", err)
		}
	}()
	logger.Info("open request already handled, skipping duplicate")

	data, err := r.directory.ReadFile(claimed.FileName())
	if err != nil {
		return
	}
	request, err := wire.DecodeRequest(name, data)
	if err != nil || !request.Open.Reply {
		return
	}
	r.mutex.Lock()
	opened := r.seenOpen[name.String()]
	r.mutex.Unlock()
	r.writeResponse(name, wire.Response{
		Kind:      wire.KindOpen,
		ID:        name.ID,
		Status:    wire.StatusSuccess,
		Opened:    opened,
		Duplicate: true,
	}, logger)
}

func (r *Responder) markOpen(name wire.Name, opened bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.seenOpen[name.String()] = opened
}

func (r *Responder) writeResponse(request wire.Name, response wire.Response, logger *slog.Logger) {
	data, err := wire.EncodeResponse(response)
	if err != nil {
		logger.Error("encoding response", "error", err)
		return
	}
	if err := r.directory.WriteFile(request.WithSuffix(wire.SuffixResponse), data); err != nil {
		logger.Error("writing response", "error", err)
	}
}

// post queues task for the event loop.
func (r *Responder) post(task func()) {
	r.mutex.Lock()
	r.tasks = append(r.tasks, task)
	r.mutex.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// drain runs queued tasks until the queue is empty.
func (r *Responder) drain() {
	for {
		r.mutex.Lock()
		if len(r.tasks) == 0 {
			r.mutex.Unlock()
			return
		}
		task := r.tasks[0]
		r.tasks[0] = nil
		r.tasks = r.tasks[1:]
		r.mutex.Unlock()

		if err := r.guard(r.logger, func() error { task(); return nil }); err != nil {
			r.logger.Error("event loop task failed", "error", err)
		}
	}
}

// afterDelay posts task onto the event loop once delay has passed.
func (r *Responder) afterDelay(delay time.Duration, task func()) {
	r.mutex.Lock()
	r.layerSequence++
	sequence := r.layerSequence
	r.mutex.Unlock()

	fired := false
	timer := r.clock.AfterFunc(delay, func() {
		r.mutex.Lock()
		fired = true
		delete(r.layerTimers, sequence)
		r.mutex.Unlock()
		r.post(task)
	})

	r.mutex.Lock()
	if !fired {
		r.layerTimers[sequence] = timer
	}
	r.mutex.Unlock()
}

func (r *Responder) stopTimers() {
	r.mutex.Lock()
	timers := make([]*clock.Timer, 0, len(r.layerTimers)+1)
	if r.scanTimer != nil {
		timers = append(timers, r.scanTimer)
	}
	for _, timer := range r.layerTimers {
		timers = append(timers, timer)
	}
	r.scanTimer = nil
	r.scanPending = false
	clear(r.layerTimers)
	r.mutex.Unlock()

	for _, timer := range timers {
		timer.Stop()
	}
}

func isRequestFile(name string) bool {
	parsed, err := wire.ParseFileName(name)
	return err == nil && parsed.Suffix == wire.SuffixRequest
}

func callLogger(logger *slog.Logger, name wire.Name) *slog.Logger {
	return logger.With(
		"kind", name.Kind,
		"node_id", name.ID.NodeID,
		"timestamp", name.ID.Timestamp,
		"file", name.String(),
	)
}
