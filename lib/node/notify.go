// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package node

import (
	"context"
	"log/slog"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// Level classifies a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notifier posts a one-line message to the pipeline's user.
type Notifier interface {
	Notify(nodeID string, level Level, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(nodeID string, level Level, message string)

func (f NotifierFunc) Notify(nodeID string, level Level, message string) { f(nodeID, level, message) }

// LogNotifier writes notifications to logger, at warn for warnings and
// errors and info otherwise.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(nodeID string, level Level, message string) {
		logLevel := slog.LevelInfo
		if level == LevelWarning || level == LevelError {
			logLevel = slog.LevelWarn
		}
		logger.Log(context.Background(), logLevel, message, "node_id", nodeID, "notification", string(level))
	})
}

// Bridge is the part of *requester.Requester the nodes use.
type Bridge interface {
	IsPeerAlive(ctx context.Context) bool
	WaitForPeer(ctx context.Context, maxWait time.Duration) bool
	Fetch(ctx context.Context, nodeID string) (requester.FetchResult, error)
	Open(ctx context.Context, nodeID string, payload wire.OpenPayload, options requester.OpenOptions) (requester.OpenReceipt, error)
}

var _ Bridge = (*requester.Requester)(nil)
