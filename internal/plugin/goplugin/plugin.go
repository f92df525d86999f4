// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paneplug Contributors

package goplugin

import (
	"github.com/paneplug/paneplug/pkg/pluginsdk"
)

// HandshakeConfig is imported from pluginsdk to ensure host and plugins
// use identical configuration. Do not define locally to prevent drift.
var HandshakeConfig = pluginsdk.HandshakeConfig

// PluginMap is the host side of pluginsdk.PluginSet: it only dispenses.
var PluginMap = pluginsdk.PluginSet(nil)
