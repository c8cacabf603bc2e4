// Package preflight provides readiness checks for the filesystem paths
// and external binaries the save pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunAll at startup and logs failures before the
//     watcher starts, so a bad path surfaces immediately instead of on
//     the first save.
//   - The CLI "vigil status" command renders the same results so an
//     operator can see at a glance why saves are not reaching the
//     archive.
//
// The melter check is optional: without the binary, text saves still
// process and only binary saves degrade.
package preflight
