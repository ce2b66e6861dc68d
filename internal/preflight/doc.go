// Package preflight provides readiness checks for the filesystem paths a
// build depends on.
//
// These checks run in two contexts:
//   - The build orchestrator calls CheckBuild before touching the output tree.
//     If any check fails, the build stops before anything is cleaned.
//   - The CLI "songpack config validate" command uses RunAll to display
//     path health for the loaded configuration.
package preflight
