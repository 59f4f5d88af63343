// Package openapi embeds the HTTP contract of the destuffing API
package openapi

import _ "embed"

// Spec is the OpenAPI document served and enforced by the API
//
//go:embed openapi.yaml
var Spec []byte
