package modulemanager

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingModule struct {
	id       string
	trace    *[]string
	initErr  error
	shutdown error
}

func (m *recordingModule) ID() string { return m.id }

func (m *recordingModule) Name() string { return "Module " + m.id }

func (m *recordingModule) Migrate(*gorm.DB) error {
	*m.trace = append(*m.trace, "migrate:"+m.id)
	return nil
}

func (m *recordingModule) Init(context.Context) error {
	*m.trace = append(*m.trace, "init:"+m.id)
	return m.initErr
}

func (m *recordingModule) Shutdown(context.Context) error {
	*m.trace = append(*m.trace, "shutdown:"+m.id)
	return m.shutdown
}

func (m *recordingModule) HealthCheck(context.Context) HealthStatus {
	return HealthStatus{Status: HealthStateHealthy}
}

func TestLoadAllAndShutdownOrder(t *testing.T) {
	var trace []string
	r := &ModuleRegistry{}
	r.Register(&recordingModule{id: "a", trace: &trace})
	r.Register(&recordingModule{id: "b", trace: &trace, shutdown: errors.New("busy")})

	require.NoError(t, r.LoadAll(context.Background(), nil))
	require.NoError(t, r.LoadAll(context.Background(), nil), "second load is a no-op")
	assert.Equal(t, []string{"init:a", "init:b"}, trace)

	report := r.HealthReport(context.Background())
	assert.Equal(t, HealthStateHealthy, report["a"].Status)

	err := r.ShutdownAll(context.Background())
	assert.ErrorContains(t, err, "b: busy")
	assert.Equal(t, []string{"init:a", "init:b", "shutdown:b", "shutdown:a"}, trace)
}

func TestLoadAllStopsOnInitError(t *testing.T) {
	var trace []string
	r := &ModuleRegistry{}
	r.Register(&recordingModule{id: "a", trace: &trace, initErr: errors.New("no config")})
	r.Register(&recordingModule{id: "b", trace: &trace})

	err := r.LoadAll(context.Background(), nil)
	assert.ErrorContains(t, err, "Module a")
	assert.Equal(t, []string{"init:a"}, trace)
}

func TestRegisterReplacesSameID(t *testing.T) {
	var trace []string
	r := &ModuleRegistry{}
	r.Register(&recordingModule{id: "a", trace: &trace})
	replacement := &recordingModule{id: "a", trace: &trace}
	r.Register(replacement)

	require.Len(t, r.ListModules(), 1)
	got, ok := r.GetModule("a")
	require.True(t, ok)
	assert.Same(t, replacement, got)
}
