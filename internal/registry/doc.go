// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry implements CoreRegistry (spec.md §4.2): a
// process-wide map from discovery key to open core, cooperative idle
// GC on a fixed tick interval, and watcher fan-out that notifies
// interested store sessions in LIFO order as cores are created.
package registry
