package cli

import (
	"fmt"

	"github.com/tpodg/serverkit/internal/config"
	"github.com/tpodg/serverkit/internal/server"
)

func newServer(s config.ServerConfig) *server.SSHServer {
	return server.NewSSHServer(s.Name, s.Address, server.User{
		Name:         s.User.Name,
		SSHKey:       s.User.SSHKey,
		SudoPassword: s.User.SudoPassword,
	}, s.KnownHostsPath, server.SSHOptions{
		UseAgent:         s.UseAgent,
		HandshakeTimeout: s.HandshakeTimeout,
	})
}

// resolveTarget picks the server an operation runs on: a configured server
// by name, the only configured server when target is empty, or an ad-hoc
// user@host:port host string.
func resolveTarget(cfg *config.Config, target string) (config.ServerConfig, error) {
	if target == "" {
		if len(cfg.Servers) == 1 {
			return cfg.Servers[0], nil
		}
		return config.ServerConfig{}, fmt.Errorf("%d servers configured, choose one with --server", len(cfg.Servers))
	}
	if s, ok := cfg.Server(target); ok {
		return s, nil
	}

	login, address, err := server.ParseHostString(target)
	if err != nil {
		return config.ServerConfig{}, err
	}
	if login == "" {
		return config.ServerConfig{}, fmt.Errorf("server %q is not configured and names no user (use user@host)", target)
	}
	return config.ServerConfig{Name: target, Address: address, User: config.UserConfig{Name: login}}, nil
}

// dialer resolves host strings met during an operation. Configured server
// names use their own credentials; other host strings reuse the key material
// of primary.
func dialer(cfg *config.Config, primary *server.SSHServer) server.Dialer {
	return func(hostString string) (server.Server, error) {
		if s, ok := cfg.Server(hostString); ok {
			return newServer(s), nil
		}
		login, address, err := server.ParseHostString(hostString)
		if err != nil {
			return nil, err
		}
		return primary.Sibling(hostString, address, login), nil
	}
}
