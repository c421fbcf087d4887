// Copyright (c) 2025 Databend Connector Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//         http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package databend

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildDSN assembles the connection string from the config's URI and
// credentials. Credentials passed separately override any embedded in the
// URI. Both databend:// URIs and the bare host:port/db form are accepted;
// the bare form is normalized to a databend:// URI.
func (c *Config) BuildDSN() (string, error) {
	if c.uri == "" {
		return "", fmt.Errorf("missing connection URI")
	}

	uri := c.uri
	if !strings.Contains(uri, "://") {
		uri = "databend://" + uri
	}

	u, err := url.Parse(uri)
	if err != nil {
		return "", fmt.Errorf("invalid URI format: %w", err)
	}
	switch u.Scheme {
	case "databend", "databend+http", "databend+https":
	default:
		return "", fmt.Errorf("unsupported URI scheme %q", u.Scheme)
	}

	if c.username != "" {
		if c.password != "" {
			u.User = url.UserPassword(c.username, c.password)
		} else {
			u.User = url.User(c.username)
		}
	}
	return u.String(), nil
}
