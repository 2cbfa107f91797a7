package main

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var got string
	root := newRootCmd(func(cfgFile string) error {
		got = cfgFile
		return nil
	})
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs(append([]string{}, args...))
	err := root.Execute()
	return got, err
}

func TestConfigPathFromFlag(t *testing.T) {
	t.Setenv("NEGOTIATOR_CONFIG", "")
	got, err := execute(t, "--config", "/etc/negotiator/alice.yaml")
	require.NoError(t, err)
	assert.Equal(t, "/etc/negotiator/alice.yaml", got)

	got, err = execute(t, "-c", "bob.yaml")
	require.NoError(t, err)
	assert.Equal(t, "bob.yaml", got)
}

func TestConfigPathFromEnv(t *testing.T) {
	t.Setenv("NEGOTIATOR_CONFIG", "/srv/negotiator.yaml")

	got, err := execute(t)
	require.NoError(t, err)
	assert.Equal(t, "/srv/negotiator.yaml", got)

	got, err = execute(t, "--config", "override.yaml")
	require.NoError(t, err)
	assert.Equal(t, "override.yaml", got, "the flag wins over the environment")
}

func TestConfigPathDefaultsToSearch(t *testing.T) {
	t.Setenv("NEGOTIATOR_CONFIG", "")
	got, err := execute(t)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestServeErrorIsReturned(t *testing.T) {
	boom := errors.New("listen tcp: address in use")
	root := newRootCmd(func(string) error { return boom })
	root.SetOut(new(bytes.Buffer))
	root.SetErr(new(bytes.Buffer))
	root.SetArgs([]string{})
	assert.ErrorIs(t, root.Execute(), boom)

	_, err := execute(t, "unexpected")
	assert.Error(t, err)
}

func TestMissingConfigFileFails(t *testing.T) {
	err := run(t.TempDir() + "/missing.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}
