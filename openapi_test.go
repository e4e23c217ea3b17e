package agent

import (
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/require"
)

func TestOpenAPISpecIsValid(t *testing.T) {
	t.Parallel()

	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(OpenAPIYAML)
	require.NoError(t, err)
	require.NoError(t, doc.Validate(loader.Context))

	for _, path := range []string{
		"/lifecycle/start",
		"/lifecycle/stop",
		"/country",
		"/recording/start",
		"/recording/stop",
		"/status",
		"/recordings",
		"/events",
	} {
		require.NotNil(t, doc.Paths.Find(path), "missing path %s", path)
	}
}
