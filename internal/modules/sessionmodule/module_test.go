package sessionmodule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zynkhq/zynk/internal/config"
	"github.com/zynkhq/zynk/internal/modules/sessionmodule/core/layout"
	"github.com/zynkhq/zynk/internal/modules/modulemanager"
	"github.com/zynkhq/zynk/internal/services"
)

type offlineInference struct{}

func (offlineInference) Analyze(context.Context, services.InferenceRequest) (string, error) {
	return services.FeedbackUnavailable, nil
}

func (offlineInference) Available() bool { return false }

func TestModuleLifecycle(t *testing.T) {
	base := t.TempDir()
	tempDir := filepath.Join(base, "sessions")
	crashed, err := layout.NewWorkspace(tempDir, "crashed-session", nil)
	require.NoError(t, err)
	orphan := crashed.Dir()
	unrelated := filepath.Join(tempDir, "not-a-session")
	require.NoError(t, os.MkdirAll(unrelated, 0755))

	cfgPath := filepath.Join(base, "zynk.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("session:\n  temp_dir: "+tempDir+"\n"), 0644))
	require.NoError(t, config.Load(cfgPath))

	services.RegisterService[services.InferenceService](services.InferenceServiceName, offlineInference{})
	t.Cleanup(func() { services.UnregisterService(services.InferenceServiceName) })

	m := &Module{}
	require.NoError(t, m.Init(context.Background()))
	assert.NoDirExists(t, orphan, "startup sweep removes leftovers")
	assert.DirExists(t, unrelated)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	m.RegisterRoutes(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/active-sessions", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	health := m.HealthCheck(context.Background())
	assert.Equal(t, modulemanager.HealthStateDegraded, health.Status)
	assert.Equal(t, 0, health.Details["active_sessions"])
	assert.Equal(t, false, health.Details["inference_available"])

	ctrl := m.newSession("", nil)
	assert.Equal(t, "", ctrl.ID())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
}
