// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads configuration for the mesh session daemon and
// CLI.
//
// Configuration comes from a single file named by either the
// MESH_CONFIG environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There are no fallbacks and no automatic file search.
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas allowed; anything else is read as YAML.
//
// The file may contain environment-specific sections (development,
// staging, production) whose non-zero values override the base values
// when [Config].Environment matches.
//
// ${VAR} and ${VAR:-default} patterns in socket_path are expanded after
// loading. No environment variable overrides a config value.
//
// This package depends on no other mesh packages.
package config
