package main

import (
	"context"
	"fmt"

	"github.com/sshcp/sshcp/internal/config"
	"github.com/sshcp/sshcp/internal/remote"
)

// newSSH builds the system-binary backend for host from the resolved
// configuration.
func newSSH(cc *CLIContext, host string) *remote.SSH {
	r := cc.Cfg.Remote

	return remote.NewSSH(remote.SSHOptions{
		Host:            host,
		SSHCommand:      r.SSHCommand,
		SCPCommand:      r.SCPCommand,
		RsyncCommand:    r.RsyncCommand,
		Port:            r.Port,
		User:            r.User,
		IdentityFile:    r.IdentityFile,
		KnownHosts:      r.KnownHosts,
		TransferTimeout: cc.Cfg.TransferTimeout,
		BandwidthLimit:  cc.Cfg.BandwidthLimit,
	}, cc.Logger)
}

// openBackend connects the transport selected by remote.transport.
func openBackend(ctx context.Context, cc *CLIContext, host string) (remote.Backend, error) {
	r := cc.Cfg.Remote

	switch r.Transport {
	case config.TransportNative:
		n, err := remote.DialNative(ctx, remote.NativeOptions{
			Host:            host,
			Port:            r.Port,
			User:            r.User,
			IdentityFile:    r.IdentityFile,
			KnownHosts:      r.KnownHosts,
			TransferTimeout: cc.Cfg.TransferTimeout,
			BandwidthLimit:  cc.Cfg.BandwidthLimit,
		}, cc.Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to %s: %w", host, err)
		}

		return n, nil
	default:
		return newSSH(cc, host), nil
	}
}

// expandRemote resolves an @bookmark prefix and tells the user when it did.
func expandRemote(cc *CLIContext, p string) (string, error) {
	expanded, err := config.ExpandBookmark(cc.Cfg.Bookmarks, p)
	if err != nil {
		return "", err
	}

	if expanded != p {
		cc.Statusf("%s %s → %s\n", styleDim.Render("Bookmark expanded:"), p, expanded)
	}

	return expanded, nil
}
