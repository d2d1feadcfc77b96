// Package api serves the REST surface: threshold management, metric and
// alert history, a CSV export, and an aggregate summary. All endpoints live
// under /api/v1 and speak JSON except the export.
package api
