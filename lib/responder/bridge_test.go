// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package responder

import (
	"context"
	"image/color"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/canvasbridge/lib/dropdir"
	"github.com/bureau-foundation/canvasbridge/lib/editor/imagehost"
	"github.com/bureau-foundation/canvasbridge/lib/requester"
	"github.com/bureau-foundation/canvasbridge/lib/testutil"
	"github.com/bureau-foundation/canvasbridge/lib/wire"
)

// startBridge runs a responder over host on the real clock and returns
// a requester sharing its directory.
func startBridge(t *testing.T, host *imagehost.Host) (*requester.Requester, *dropdir.Directory) {
	t.Helper()
	directory, err := dropdir.Open(t.TempDir())
	if err != nil {
		t.Fatalf("dropdir.Open: %v", err)
	}
	responder, err := New(Config{
		Directory:            directory,
		Editor:               host,
		Debounce:             50 * time.Millisecond,
		FallbackScanInterval: 200 * time.Millisecond,
		LayerSetupDelay:      10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Sweep and write the presence flag before any request exists, so
	// the startup sweep never races the test's first call.
	if err := responder.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- responder.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := testutil.RequireReceive(t, done, 5*time.Second, "responder shutdown"); err != nil {
			t.Errorf("Run: %v", err)
		}
	})

	client, err := requester.New(requester.Config{Directory: directory})
	if err != nil {
		t.Fatalf("requester.New: %v", err)
	}
	return client, directory
}

func TestBridge_Fetch(t *testing.T) {
	host := imagehost.New()
	if _, err := host.Load(writeImage(t, 8, 6, color.NRGBA{R: 10, G: 20, B: 30, A: 255})); err != nil {
		t.Fatalf("Load: %v", err)
	}
	client, directory := startBridge(t, host)

	result, err := client.Fetch(context.Background(), "n1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if result.ImagePath == "" {
		t.Fatal("fetch returned no image path")
	}
	testutil.RequireFile(t, result.ImagePath, time.Second)

	// The export is named after the call's correlation id, which names
	// the request and response files too.
	exportName := filepath.Base(result.ImagePath)
	correlation := strings.TrimSuffix(strings.TrimPrefix(exportName, "editor_export_"), ".png")
	request, err := wire.ParseFileName("fetch_" + correlation + wire.SuffixRequest)
	if err != nil {
		t.Fatalf("export %s does not carry a correlation id: %v", exportName, err)
	}
	if request.ID.NodeID != "n1" {
		t.Fatalf("export %s belongs to node %q, want n1", exportName, request.ID.NodeID)
	}
	for _, suffix := range []string{wire.SuffixRequest, wire.SuffixProcessing, wire.SuffixResponse} {
		testutil.RequireNoFile(t, directory.Join(request.WithSuffix(suffix)), time.Second)
	}
}

func TestBridge_CheckDocumentWithoutDocument(t *testing.T) {
	client, directory := startBridge(t, imagehost.New())

	hasDocument, err := client.CheckDocument(context.Background(), "n1")
	if err != nil {
		t.Fatalf("CheckDocument: %v", err)
	}
	if hasDocument {
		t.Fatal("CheckDocument = true on an empty editor")
	}
	names, err := directory.List(wire.KindCheckDocument, wire.SuffixResponse)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("responses left behind: %v", names)
	}
}

func TestBridge_OpenWithReply(t *testing.T) {
	host := imagehost.New()
	client, _ := startBridge(t, host)

	if !client.IsPeerAlive(context.Background()) {
		t.Fatal("IsPeerAlive = false with a running responder")
	}

	receipt, err := client.Open(context.Background(), "send-1", wire.OpenPayload{
		ImagePath:     writeImage(t, 4, 4, color.NRGBA{R: 255, A: 255}),
		LayerPosition: wire.LayerNewDocument,
		Alignment:     wire.AlignCenter,
		AutoOpen:      true,
		Reply:         true,
	}, requester.OpenOptions{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if receipt.Response == nil || !receipt.Response.Opened {
		t.Fatalf("receipt = %+v, want an opened reply", receipt)
	}
	if got := host.OpenCount(); got != 1 {
		t.Fatalf("OpenCount = %d, want 1", got)
	}
}
