package config

import (
	"net"
	"net/url"
	"os"
	"sync"
)

var (
	isDockerOnce   sync.Once
	isDockerResult bool
)

// IsRunningInDocker returns true if the process runs inside a Docker container.
// Detection is based on /.dockerenv. The result is cached after the first call.
func IsRunningInDocker() bool {
	isDockerOnce.Do(func() {
		_, err := os.Stat("/.dockerenv")
		isDockerResult = err == nil
	})
	return isDockerResult
}

// ResolveHostForDocker maps localhost to host.docker.internal when running
// in Docker so a model server on the host machine stays reachable.
func ResolveHostForDocker(host string) string {
	return resolveHost(host, IsRunningInDocker())
}

// ResolveURLForDocker applies ResolveHostForDocker to the host of rawURL.
// Unparseable or empty URLs are returned unchanged.
func ResolveURLForDocker(rawURL string) string {
	return resolveURL(rawURL, IsRunningInDocker())
}

func resolveHost(host string, inDocker bool) string {
	if inDocker && (host == "localhost" || host == "127.0.0.1") {
		return "host.docker.internal"
	}
	return host
}

func resolveURL(rawURL string, inDocker bool) string {
	if rawURL == "" || !inDocker {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}

	host, port := u.Hostname(), u.Port()
	resolved := resolveHost(host, true)
	if resolved == host {
		return rawURL
	}
	if port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}
