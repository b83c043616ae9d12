//go:build tools

// Package tools pins build-time dependencies that are not imported by the
// application itself. swag generates the OpenAPI document from the handler
// annotations.
package tools

import (
	_ "github.com/swaggo/swag"
)
