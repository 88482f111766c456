package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/austinkregel/local-media/musicd/internal/params"
)

func TestLoadCreatesDefaultConfigWhenMissing(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)

	require.NoError(t, m.Load())
	assert.FileExists(t, filepath.Join(dir, "config.json"))
	assert.Equal(t, params.Default(), m.Params())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	b := m.Params()
	b.Fusion.FusionThreshold = 3.0
	require.NoError(t, m.ReloadParams(b))

	m2 := NewManager(dir)
	require.NoError(t, m2.Load())
	assert.Equal(t, 3.0, m2.Params().Fusion.FusionThreshold)
}

func TestReloadParamsRejectsInvalidBundle(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	before := m.Params()
	bad := before
	bad.Rhythm.BPMMax = bad.Rhythm.BPMMin - 1

	err := m.ReloadParams(bad)
	require.Error(t, err)
	assert.Equal(t, before, m.Params())
}

func TestLoadRejectsOnDiskInvalidParamsAndKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.Load())

	bad := m.Get()
	bad.Params.FrontEnd.HitThresh = 999
	// Bypass ReloadParams's validation to simulate a hand-edited file.
	m2 := NewManager(dir)
	m2.config = &bad
	require.NoError(t, m2.Save())

	m3 := NewManager(dir)
	err := m3.Load()
	require.Error(t, err)
	assert.Equal(t, params.Default(), m3.Params())
}
