// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth implements the resolver spec.md §4.5 describes:
// turning a get() request's identity fields (name, key pair, manifest,
// key, or discovery key — first match wins) into the complete
// {key_pair?, key, discovery_key, manifest?} tuple the registry and
// CoreEngine need to open a core.
package auth
