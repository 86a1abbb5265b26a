// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamtracker implements the ordered, positionally-indexed
// list of live peer streams corestore.md §4.4 describes: O(1) removal
// by swapping the tail into the vacated slot, attach-all fan-out
// against a newly opened core, and reverse-order teardown that leaves
// caller-owned ("external") streams alone.
package streamtracker
