package source

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ju4n97/estimator/internal/power"
)

const testMetadata = `{"model_name":"SGDRegressorTrainer_0","trainer_name":"SGDRegressorTrainer","backend":"linear","components":["package"]}`

// modelZip builds an artifact archive wrapped in a single root directory,
// the way the model server ships it.
func modelZip(t *testing.T) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range map[string]string{
		"model/metadata.json": testMetadata,
		"model/package.json":  `{"All_Weights":{"Bias_Weight":1,"Categorical_Variables":{},"Numerical_Variables":{}}}`,
	} {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	return buf.Bytes()
}

func newRequest(t *testing.T, source string) *power.Request {
	t.Helper()

	data := `{"metrics":["cpu_time"],"values":[[1]],"output_type":"AbsPower","source":"` + source +
		`","system_features":["cpu_arch"],"system_values":["x86"],"trainer_name":"SGDRegressorTrainer","filter":""}`
	req, err := power.ParseRequest([]byte(data))
	require.NoError(t, err)
	return req
}
