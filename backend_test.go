package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcp/sshcp/internal/remote"
)

func TestNewSSH_UsesConfig(t *testing.T) {
	cc := testCLIContext(t, `
[remote]
user = "deploy"
`)

	ssh := newSSH(cc, "prod")

	assert.Equal(t, "prod", ssh.Host())
	assert.Equal(t, "deploy@prod:/srv/site", ssh.RemoteSpec("/srv/site"))
}

func TestOpenBackend_SSHByDefault(t *testing.T) {
	cc := testCLIContext(t, "")

	backend, err := openBackend(t.Context(), cc, "prod")
	require.NoError(t, err)
	defer backend.Close()

	_, ok := backend.(*remote.SSH)
	assert.True(t, ok)
}
