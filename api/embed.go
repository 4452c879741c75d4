// Package api holds the OpenAPI document of the console API
package api

import _ "embed"

// OpenAPI is the console API description used for request validation
//
//go:embed openapi.yaml
var OpenAPI []byte
