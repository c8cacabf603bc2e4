// Package config loads vigil's TOML configuration and normalizes it into a
// validated, fully absolute form.
//
// Defaults target a stock Victoria 3 install; every path field is expanded
// (including ~) and made absolute during Load so downstream code never
// re-resolves paths.
package config
