// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dirwatch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// watchMask selects the events that can make a new file visible under
// its final name. IN_CLOSE_WRITE covers writers that create the file in
// place instead of renaming.
const watchMask = unix.IN_CREATE | unix.IN_MOVED_TO | unix.IN_CLOSE_WRITE

// startNotifier installs an inotify watch on directory. Each batch of
// events containing a name accepted by filter (or a queue overflow)
// results in a non-blocking send on notifications. The returned stop
// function ends the read loop and closes the inotify descriptor; it is
// safe to call more than once.
func startNotifier(directory string, filter func(string) bool, notifications chan<- struct{}, logger *slog.Logger) (func(), error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init1: %w", err)
	}
	if _, err := unix.InotifyAddWatch(fd, directory, watchMask); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("inotify_add_watch on %s: %w", directory, err)
	}

	stopChannel := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		notifyLoop(fd, filter, notifications, stopChannel, logger)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopChannel)
			<-finished
		})
	}, nil
}

// notifyLoop reads inotify events until stopChannel closes. poll(2)
// with a 100ms timeout keeps the goroutine responsive to stop without
// spinning.
func notifyLoop(fd int, filter func(string) bool, notifications chan<- struct{}, stopChannel <-chan struct{}, logger *slog.Logger) {
	defer unix.Close(fd)

	buffer := make([]byte, 64*(unix.SizeofInotifyEvent+unix.NAME_MAX+1))
	for {
		select {
		case <-stopChannel:
			return
		default:
		}

		pollDescriptors := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		count, err := unix.Poll(pollDescriptors, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.Error("polling inotify descriptor", "error", err)
			return
		}
		if count == 0 {
			continue
		}

		bytesRead, err := unix.Read(fd, buffer)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}
			logger.Error("reading inotify events", "error", err)
			return
		}

		if !batchRelevant(buffer[:bytesRead], filter) {
			continue
		}
		select {
		case notifications <- struct{}{}:
		default:
		}
	}
}

// batchRelevant reports whether a buffer of raw inotify events holds
// an overflow marker or a name accepted by filter.
//
// Event layout (inotify(7)):
//
//	struct inotify_event {
//	    int32_t  wd;     // offset 0
//	    uint32_t mask;   // offset 4
//	    uint32_t cookie; // offset 8
//	    uint32_t len;    // offset 12
//	    char     name[]; // offset 16, NUL padded
//	};
func batchRelevant(buffer []byte, filter func(string) bool) bool {
	for offset := 0; offset+unix.SizeofInotifyEvent <= len(buffer); {
		mask := binary.NativeEndian.Uint32(buffer[offset+4 : offset+8])
		nameLength := int(binary.NativeEndian.Uint32(buffer[offset+12 : offset+16]))
		end := offset + unix.SizeofInotifyEvent + nameLength
		if end > len(buffer) {
			return false
		}
		if mask&unix.IN_Q_OVERFLOW != 0 {
			return true
		}
		if nameLength > 0 {
			name := buffer[offset+unix.SizeofInotifyEvent : end]
			if terminator := bytes.IndexByte(name, 0); terminator >= 0 {
				name = name[:terminator]
			}
			if filter(string(name)) {
				return true
			}
		}
		offset = end
	}
	return false
}
