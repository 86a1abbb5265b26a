// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time so that corestore's core registry
// idle-GC ticker (spec §4.2) can be driven deterministically in tests.
//
// Production code injects Real(); tests inject Fake() and call Advance to
// move time forward without sleeping. The Store and the registry accept
// a Clock; the replication transports' ICE-gathering, answer-poll, and
// data-channel timeouts use the time package directly.
package clock
