package database

import (
	"net/url"
	"strings"
)

// ConstructDatabaseURL joins a server URL and a database name. When a name is
// given the result always carries an sslmode, defaulting to disable.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return baseURL
	}
	u.Path = "/" + databaseName

	q := u.Query()
	if q.Get("sslmode") == "" {
		q.Set("sslmode", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String()
}
