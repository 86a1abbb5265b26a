// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sessiontracker implements the per-core registry of
// outstanding session handles corestore.md §4.3 describes: a lazily
// created list per discovery key, garbage collected when it empties,
// with iteration across every live session in every core. It does not
// decide when a core has gone idle: corestore keeps a separate
// per-discovery-key session count for that.
package sessiontracker
