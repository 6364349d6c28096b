// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package requester

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/bureau-foundation/canvasbridge/lib/clock"
	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/pathmap"
	"github.com/bureau-foundation/canvasbridge/lib/presence"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

var (
	// ErrTimeout means no usable response arrived before the deadline.
	// Malformed responses wrap it too.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrCancelled means the wait was abandoned by Cancel or by the
	// context.
	ErrCancelled = errors.New("call cancelled")
)

// RemoteError is a response with status failure.
type RemoteError struct {
	Kind    wire.Kind
	ID      wire.CorrelationID
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s failed on the responder", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %s failed on the responder: %s", e.Kind, e.ID, e.Message)
}

// Timing is the poll policy of one call.
type Timing struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	Grace        time.Duration `yaml:"grace"`
}

// DefaultTiming returns the poll policy for kind.
func DefaultTiming(kind wire.Kind) Timing {
	switch kind {
	case wire.KindFetch:
		return Timing{PollInterval: 200 * time.Millisecond, Timeout: 15 * time.Second, Grace: 300 * time.Millisecond}
	default:
		return Timing{PollInterval: 500 * time.Millisecond, Timeout: 10 * time.Second, Grace: 200 * time.Millisecond}
	}
}

// Validate rejects non-positive intervals and timeouts.
func (t Timing) Validate() error {
	var errs []error
	if t.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %v", t.PollInterval))
	}
	if t.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %v", t.Timeout))
	}
	if t.Grace < 0 {
		errs = append(errs, fmt.Errorf("grace must not be negative, got %v", t.Grace))
	}
	return errors.Join(errs...)
}

// Liveness is the policy of IsPeerAlive and WaitForPeer.
type Liveness struct {
	// Interval separates WaitForPeer attempts.
	Interval time.Duration `yaml:"interval"`

	// MaxWait bounds WaitForPeer when the caller passes zero.
	MaxWait time.Duration `yaml:"max_wait"`

	// ProbeTimeout bounds the active check_document probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// DefaultLiveness is 0.5s between attempts, 30s overall, 10s per probe.
func DefaultLiveness() Liveness {
	return Liveness{Interval: 500 * time.Millisecond, MaxWait: 30 * time.Second, ProbeTimeout: 10 * time.Second}
}

// DefaultOpenDedupWindow suppresses repeated opens of the same key.
const DefaultOpenDedupWindow = 5 * time.Second

// Config configures a Requester.
type Config struct {
	// Directory is the shared directory. Required.
	Directory *dropdir.Directory

	// PeerPaths translates paths in responses from the responder's
	// namespace into this host's. Nil means no translation.
	PeerPaths *pathmap.Translator

	// Clock drives polling. Nil means clock.Real().
	Clock clock.Clock

	// Logger receives call logs. Nil discards them.
	Logger *slog.Logger

	// Timings overrides DefaultTiming per kind.
	Timings map[wire.Kind]Timing

	// Liveness overrides DefaultLiveness. Zero fields keep the default.
	Liveness Liveness

	// OpenDedupWindow is how long a dedup key suppresses repeated
	// opens. Zero means DefaultOpenDedupWindow; negative disables it.
	OpenDedupWindow time.Duration

	// PresenceFileName names the responder's presence flag. Empty
	// means presence.DefaultFileName.
	PresenceFileName string
}

// Requester is the pipeline-side protocol endpoint. Safe for
// concurrent use; each call is independent.
type Requester struct {
	directory *dropdir.Directory
	peerPaths *pathmap.Translator
	clock     clock.Clock
	logger    *slog.Logger
	timings   map[wire.Kind]Timing
	liveness  Liveness
	dedup     time.Duration
	flagName  string

	mutex    sync.Mutex
	waiting  map[string]map[uint64]chan struct{}
	sequence uint64
	lastOpen map[string]time.Time
}

// New validates config and returns a Requester.
func New(config Config) (*Requester, error) {
	if config.Directory == nil {
		return nil, errors.New("requester: Directory is required")
	}
	requester := &Requester{
		directory: config.Directory,
		peerPaths: config.PeerPaths,
		clock:     config.Clock,
		logger:    config.Logger,
		timings:   make(map[wire.Kind]Timing),
		liveness:  DefaultLiveness(),
		dedup:     config.OpenDedupWindow,
		flagName:  config.PresenceFileName,
		waiting:   make(map[string]map[uint64]chan struct{}),
		lastOpen:  make(map[string]time.Time),
	}
	if requester.peerPaths == nil {
		requester.peerPaths = pathmap.Identity()
	}
	if requester.clock == nil {
		requester.clock = clock.Real()
	}
	if requester.logger == nil {
		requester.logger = slog.New(slog.DiscardHandler)
	}
	if requester.dedup == 0 {
		requester.dedup = DefaultOpenDedupWindow
	}
	if requester.flagName == "" {
		requester.flagName = presence.DefaultFileName
	}

	var errs []error
	for _, kind := range wire.DispatchOrder {
		timing := DefaultTiming(kind)
		if override, ok := config.Timings[kind]; ok {
			timing = override
		}
		if err := timing.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("%s timing: %w", kind, err))
		}
		requester.timings[kind] = timing
	}
	if config.Liveness.Interval > 0 {
		requester.liveness.Interval = config.Liveness.Interval
	}
	if config.Liveness.MaxWait > 0 {
		requester.liveness.MaxWait = config.Liveness.MaxWait
	}
	if config.Liveness.ProbeTimeout > 0 {
		requester.liveness.ProbeTimeout = config.Liveness.ProbeTimeout
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return requester, nil
}

// Timing returns the configured poll policy for kind.
func (r *Requester) Timing(kind wire.Kind) Timing { return r.timings[kind] }

// Call performs one request and blocks until its response, the
// timing's deadline, or cancellation. open is required for KindOpen
// and ignored otherwise. Call always waits for a response, whatever
// open.Reply says; Open is the fire-and-forget entry point.
func (r *Requester) Call(ctx context.Context, nodeID string, kind wire.Kind, open *wire.OpenPayload, timing Timing) (wire.Response, error) {
	if err := timing.Validate(); err != nil {
		return wire.Response{}, err
	}

	cancelled, release := r.register(nodeID)
	defer release()

	requestName, err := r.submit(nodeID, kind, open)
	if err != nil {
		return wire.Response{}, err
	}
	responseName := requestName
	responseName.Suffix = wire.SuffixResponse
	logger := callLogger(r.logger, requestName)

	removeRequest := func() {
		if err := r.directory.Remove(requestName.String()); err != nil {
			logger.Warn("removing request", "error", err)
		}
	}

	deadline := r.clock.Now().Add(timing.Timeout)
	for {
		present, err := r.directory.Exists(responseName.String())
		if err != nil {
			removeRequest()
			return wire.Response{}, fmt.Errorf("checking for %s: %w", responseName, err)
		}
		if present {
			break
		}

		if stop := stopReason(ctx, cancelled); stop != nil {
			removeRequest()
			logger.Info("call cancelled")
			return wire.Response{}, stop
		}

		remaining := deadline.Sub(r.clock.Now())
		if remaining <= 0 {
			removeRequest()
			logger.Warn("no response before deadline", "timeout", timing.Timeout)
			return wire.Response{}, fmt.Errorf("%s %s: %w after %v", kind, requestName.ID, ErrTimeout, timing.Timeout)
		}

		select {
		case <-r.clock.After(min(timing.PollInterval, remaining)):
		case <-cancelled:
		case <-ctx.Done():
		}
	}

	// The response is visible; give the writer's side time to land
	// the content.
	if timing.Grace > 0 {
		select {
		case <-r.clock.After(timing.Grace):
		case <-cancelled:
		case <-ctx.Done():
		}
	}

	data, readErr := r.directory.ReadFile(responseName.String())
	removeRequest()
	if err := r.directory.Remove(responseName.String()); err != nil {
		logger.Warn("removing response", "error", err)
	}
	if readErr != nil {
		return wire.Response{}, fmt.Errorf("reading %s: %w", responseName, readErr)
	}

	response, err := wire.DecodeResponse(responseName, data)
	if err != nil {
		logger.Warn("unusable response", "error", err)
		return wire.Response{}, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if !response.Succeeded() {
		logger.Info("responder reported failure", "message", response.Message)
		return response, &RemoteError{Kind: kind, ID: requestName.ID, Message: response.Message}
	}
	logger.Debug("call completed")
	return response, nil
}

// submit writes the request file for a new call.
func (r *Requester) submit(nodeID string, kind wire.Kind, open *wire.OpenPayload) (wire.Name, error) {
	id := wire.NewCorrelationID(nodeID, r.clock.Now())
	data, err := wire.EncodeRequest(wire.Request{Kind: kind, ID: id, Open: open})
	if err != nil {
		return wire.Name{}, err
	}
	name := wire.Name{Kind: kind, ID: id, Suffix: wire.SuffixRequest}
	if err := r.directory.WriteFile(name.String(), data); err != nil {
		return wire.Name{}, err
	}
	callLogger(r.logger, name).Debug("request written")
	return name, nil
}

// Cancel abandons every call currently waiting for nodeID. Reports
// whether any was waiting.
func (r *Requester) Cancel(nodeID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	calls := r.waiting[nodeID]
	for _, channel := range calls {
		close(channel)
	}
	delete(r.waiting, nodeID)
	return len(calls) > 0
}

// Waiting reports whether a call for nodeID is in progress.
func (r *Requester) Waiting(nodeID string) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.waiting[nodeID]) > 0
}

func (r *Requester) register(nodeID string) (<-chan struct{}, func()) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.sequence++
	sequence := r.sequence
	channel := make(chan struct{})
	if r.waiting[nodeID] == nil {
		r.waiting[nodeID] = make(map[uint64]chan struct{})
	}
	r.waiting[nodeID][sequence] = channel
	return channel, func() {
		r.mutex.Lock()
		defer r.mutex.Unlock()
		if calls, ok := r.waiting[nodeID]; ok {
			delete(calls, sequence)
			if len(calls) == 0 {
				delete(r.waiting, nodeID)
			}
		}
	}
}

func stopReason(ctx context.Context, cancelled <-chan struct{}) error {
	select {
	case <-cancelled:
		return ErrCancelled
	default:
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	return nil
}

// CheckDocument asks whether the editor has an active document.
func (r *Requester) CheckDocument(ctx context.Context, nodeID string) (bool, error) {
	response, err := r.Call(ctx, nodeID, wire.KindCheckDocument, nil, r.timings[wire.KindCheckDocument])
	if err != nil {
		return false, err
	}
	return response.HasActiveDocument, nil
}

// FetchResult is a successful fetch with paths in this host's
// namespace.
type FetchResult struct {
	ImagePath string

	// MaskPath is empty when the editor had no selection.
	MaskPath string
}

// Fetch asks the editor to export its canvas and selection.
func (r *Requester) Fetch(ctx context.Context, nodeID string) (FetchResult, error) {
	response, err := r.Call(ctx, nodeID, wire.KindFetch, nil, r.timings[wire.KindFetch])
	if err != nil {
		return FetchResult{}, err
	}
	result := FetchResult{ImagePath: r.peerPaths.Translate(response.ImagePath)}
	if response.MaskPath != "" {
		result.MaskPath = r.peerPaths.Translate(response.MaskPath)
	}
	return result, nil
}

// OpenOptions tunes Open.
type OpenOptions struct {
	// DedupKey suppresses a second open with the same key inside the
	// dedup window. Empty means the image path.
	DedupKey string
}

// OpenReceipt describes an open request.
type OpenReceipt struct {
	// ID is the call's correlation id. Zero when Suppressed.
	ID wire.CorrelationID

	// Suppressed is true when the dedup window dropped the request.
	Suppressed bool

	// Response is set when the payload asked for a reply.
	Response *wire.Response
}

// Open asks the editor to open an image. Without payload.Reply it
// returns right after writing the request; with it, it waits like Call.
func (r *Requester) Open(ctx context.Context, nodeID string, payload wire.OpenPayload, options OpenOptions) (OpenReceipt, error) {
	key := options.DedupKey
	if key == "" {
		key = payload.ImagePath
	}
	if r.suppressOpen(key) {
		r.logger.Info("suppressing repeated open", "node_id", nodeID, "dedup_key", key, "window", r.dedup)
		return OpenReceipt{Suppressed: true}, nil
	}

	if !payload.Reply {
		name, err := r.submit(nodeID, wire.KindOpen, &payload)
		if err != nil {
			r.forgetOpen(key)
			return OpenReceipt{}, err
		}
		return OpenReceipt{ID: name.ID}, nil
	}

	response, err := r.Call(ctx, nodeID, wire.KindOpen, &payload, r.timings[wire.KindOpen])
	if err != nil {
		var remote *RemoteError
		if !errors.As(err, &remote) {
			r.forgetOpen(key)
		}
		return OpenReceipt{ID: response.ID}, err
	}
	return OpenReceipt{ID: response.ID, Response: &response}, nil
}

// suppressOpen records key and reports whether it was already recorded
// within the dedup window.
func (r *Requester) suppressOpen(key string) bool {
	if r.dedup < 0 {
		return false
	}
	now := r.clock.Now()
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for other, at := range r.lastOpen {
		if now.Sub(at) >= r.dedup {
			delete(r.lastOpen, other)
		}
	}
	if _, recent := r.lastOpen[key]; recent {
		return true
	}
	r.lastOpen[key] = now
	return false
}

func (r *Requester) forgetOpen(key string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.lastOpen, key)
}

// IsPeerAlive checks the presence flag and, when it is absent, probes
// with a check_document call. Any answer, success or failure, counts
// as alive.
func (r *Requester) IsPeerAlive(ctx context.Context) bool {
	present, err := presence.Present(r.directory, r.flagName)
	if err != nil {
		r.logger.Warn("checking presence flag", "error", err)
	}
	if present {
		return true
	}

	timing := r.timings[wire.KindCheckDocument]
	timing.Timeout = r.liveness.ProbeTimeout
	_, err = r.Call(ctx, xid.New().String(), wire.KindCheckDocument, nil, timing)
	var remote *RemoteError
	return err == nil || errors.As(err, &remote)
}

// WaitForPeer polls IsPeerAlive until it succeeds or maxWait passes.
// Zero maxWait uses the configured default.
func (r *Requester) WaitForPeer(ctx context.Context, maxWait time.Duration) bool {
	if maxWait <= 0 {
		maxWait = r.liveness.MaxWait
	}
	deadline := r.clock.Now().Add(maxWait)
	for {
		if r.IsPeerAlive(ctx) {
			return true
		}
		remaining := deadline.Sub(r.clock.Now())
		if remaining <= 0 || ctx.Err() != nil {
			return false
		}
		select {
		case <-r.clock.After(min(r.liveness.Interval, remaining)):
		case <-ctx.Done():
			return false
		}
	}
}

func callLogger(logger *slog.Logger, name wire.Name) *slog.Logger {
	return logger.With(
		"kind", name.Kind,
		"node_id", name.ID.NodeID,
		"timestamp", name.ID.Timestamp,
		"file", name.String(),
	)
}
