// Package schemas embeds the JSON Schemas shipped with the binary.
package schemas

import _ "embed"

// Config is the schema of the bill_agent configuration file.
//
//go:embed config.schema.json
var Config string
