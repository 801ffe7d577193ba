// Package schemas holds the embedded JSON Schemas for artifact validation.
package schemas

import _ "embed"

// ReportSchemaJSON is the JSON Schema for v2 evaluation reports.
//
//go:embed report.schema.json
var ReportSchemaJSON string
