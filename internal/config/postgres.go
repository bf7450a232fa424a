package config

import (
	"fmt"
	"net/url"
	"strings"
)

func (c PostgresConfig) port() int {
	if c.Port != 0 {
		return c.Port
	}
	return 5432
}

// DSN builds a postgres:// connection string. If Host already is a full DSN
// it is returned as-is.
func (c PostgresConfig) DSN() (string, error) {
	if strings.HasPrefix(c.Host, "postgres://") || strings.HasPrefix(c.Host, "postgresql://") {
		return c.Host, nil
	}
	if c.Host == "" {
		return "", fmt.Errorf("postgres host is empty")
	}
	if c.Database == "" {
		return "", fmt.Errorf("postgres database is empty")
	}
	if c.User == "" {
		return "", fmt.Errorf("postgres user is empty")
	}

	hostPort := c.Host
	port := c.port()
	// Handle IPv6 or explicit host:port strings.
	if strings.HasPrefix(hostPort, "[") {
		if !strings.Contains(hostPort, "]:") {
			hostPort = fmt.Sprintf("%s:%d", hostPort, port)
		}
	} else if strings.Count(hostPort, ":") >= 2 {
		hostPort = fmt.Sprintf("[%s]:%d", hostPort, port)
	} else if !strings.Contains(hostPort, ":") {
		hostPort = fmt.Sprintf("%s:%d", hostPort, port)
	}

	u := &url.URL{Scheme: "postgres", Host: hostPort, Path: "/" + c.Database}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
