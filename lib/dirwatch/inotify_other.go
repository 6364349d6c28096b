// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package dirwatch

import "log/slog"

func startNotifier(string, func(string) bool, chan<- struct{}, *slog.Logger) (func(), error) {
	return nil, errNotifyUnsupported
}
