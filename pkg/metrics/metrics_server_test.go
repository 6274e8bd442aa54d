/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func Test_MetricsServer_WithPort(t *testing.T) {
	ms := NewMetricsServer(WithPort(9090))
	assert.Equal(t, 9090, ms.port)
	assert.Equal(t, DefaultMetricsPort, NewMetricsServer().port)
}

func Test_MetricsServer_WithHealthCheckExecutor(t *testing.T) {
	executed := false
	ms := NewMetricsServer(WithHealthCheckExecutor(func() error {
		executed = true
		return nil
	}))
	assert.Len(t, ms.healthCheckExecutors, 1)

	srv := httptest.NewServer(ms.handler(zap.NewNop().Sugar()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/readyz")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, executed)
}

func Test_MetricsServer_Endpoints(t *testing.T) {
	BuildInfo.WithLabelValues("test", "linux/amd64").Set(1)
	ms := NewMetricsServer(WithHealthCheckExecutor(func() error {
		return errors.New("not ready")
	}))
	srv := httptest.NewServer(ms.handler(zap.NewNop().Sugar()))
	defer srv.Close()

	tests := []struct {
		path   string
		status int
	}{
		{path: "/livez", status: http.StatusNoContent},
		{path: "/readyz", status: http.StatusInternalServerError},
		{path: "/metrics", status: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			assert.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			if tt.path == "/metrics" {
				body, err := io.ReadAll(resp.Body)
				assert.NoError(t, err)
				assert.Contains(t, string(body), "batchq_build_info")
			}
		})
	}
}

func Test_MetricsServer_InvalidPort(t *testing.T) {
	ms := NewMetricsServer(WithPort(-1))
	shutdown, err := ms.Start(context.Background())
	assert.Error(t, err)
	assert.Nil(t, shutdown)
}
