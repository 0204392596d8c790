// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: MIT

// Package gpux defines the capability boundary between the vidre renderer
// and the underlying GPU abstraction.
//
// The renderer consumes a small set of verbs (create/destroy texture,
// dispatch fragment, dispatch compute, query formats and limits) through the
// Device interface and never talks to a graphics API directly. Backends
// under vidre/backend implement Device; hosts may also supply their own.
//
// The design mirrors the adapter pattern of the wider gogpu ecosystem:
// texture formats are the shared gputypes enums, and all other handles are
// opaque to the caller.
package gpux
