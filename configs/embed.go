// Package configs embeds the commented configuration template written by
// `indexsync config init`.
//
// Values in the template equal the defaults from config.NewConfig. Paths
// under ~/.indexsync are left commented out so the defaults resolve against
// the home directory of whoever runs the daemon.
package configs

import _ "embed"

// ConfigTemplate is the commented indexsync.yaml template.
//
//go:embed indexsync.example.yaml
var ConfigTemplate string
