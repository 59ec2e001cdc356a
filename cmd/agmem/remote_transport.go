package main

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/vivek-tiwari-vt/agmem/pkg/remote"
	"github.com/vivek-tiwari-vt/agmem/pkg/repo"
)

type remoteTransportKind string

const (
	remoteTransportGot remoteTransportKind = "got"
	remoteTransportGit remoteTransportKind = "git"
	remoteTransportFS  remoteTransportKind = "fs"
)

func parseRemoteSpec(raw string) (remoteTransportKind, string, error) {
	canonical, err := canonicalizeRemoteSpec(raw)
	if err != nil {
		return "", "", err
	}
	if shouldUseGitTransport(canonical) {
		return remoteTransportGit, canonical, nil
	}
	if _, err := remote.ParseEndpoint(canonical); err == nil {
		return remoteTransportGot, canonical, nil
	}
	if looksLikeGitRemote(canonical) {
		return remoteTransportGit, canonical, nil
	}
	if gotDir, ok := localRepoGotDir(canonical); ok {
		return remoteTransportFS, gotDir, nil
	}
	return "", "", fmt.Errorf("unsupported remote %q", raw)
}

// parseGotRemoteURL canonicalizes raw and accepts it only when it names a
// got-protocol remote; git and filesystem remotes are rejected.
func parseGotRemoteURL(raw string) (string, error) {
	kind, canonical, err := parseRemoteSpec(raw)
	if err != nil {
		return "", err
	}
	if kind != remoteTransportGot {
		return "", fmt.Errorf("remote %q uses the %s transport, not got", raw, kind)
	}
	return canonical, nil
}

// localRepoGotDir reports whether raw names a local path to another agmem
// repository, returning its .mem directory. It is the filesystem sibling of
// the HTTP gothub transport: two repos sharing a mounted volume sync through
// this instead of a network endpoint.
func localRepoGotDir(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || looksLikeRemoteURL(raw) {
		return "", false
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", false
	}
	if r, err := repo.Open(abs); err == nil {
		return filepath.Join(r.RootDir, ".mem"), true
	}
	if info, err := os.Stat(filepath.Join(abs, ".mem")); err == nil && info.IsDir() {
		return filepath.Join(abs, ".mem"), true
	}
	return "", false
}

func shouldUseGitTransport(raw string) bool {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "git@") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" {
		return false
	}
	if strings.EqualFold(u.Scheme, "file") {
		return strings.TrimSpace(u.Path) != ""
	}
	if strings.TrimSpace(u.Host) == "" {
		return false
	}
	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if isKnownGitForgeHost(host) {
		return true
	}
	base := strings.ToLower(path.Base(strings.TrimSpace(u.Path)))
	return strings.HasSuffix(base, ".git")
}

func isKnownGitForgeHost(host string) bool {
	switch host {
	case "github.com", "gitlab.com", "bitbucket.org":
		return true
	default:
		return false
	}
}

func looksLikeGitRemote(raw string) bool {
	s := strings.TrimSpace(raw)
	if s == "" {
		return false
	}
	if strings.HasPrefix(s, "git@") {
		return true
	}
	if strings.HasPrefix(s, "ssh://") {
		return true
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	if u.Scheme == "" {
		return false
	}
	if strings.EqualFold(u.Scheme, "file") {
		return strings.TrimSpace(u.Path) != ""
	}
	if strings.TrimSpace(u.Host) == "" {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ssh", "git", "file":
		return strings.TrimSpace(u.Path) != ""
	default:
		return false
	}
}
