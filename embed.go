package agent

import _ "embed"

// OpenAPIYAML is the agent's control API specification, served by the agent
// itself at /spec.yaml and /spec.json.
//
//go:embed openapi.yaml
var OpenAPIYAML []byte
