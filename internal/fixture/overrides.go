package fixture

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"
)

// Response is a canned reply for one endpoint.
type Response struct {
	Status int
	Body   json.RawMessage
}

// fixtureFile is the YAML layout of a fixtures file:
//
//	responses:
//	  - endpoint: /Groups/_listGroupsForUser
//	    body: [{groups: [g1, g2]}]
//	  - endpoint: /UserAuthentication/authenticate
//	    status: 401
//	    body: {error: invalid credentials}
type fixtureFile struct {
	Responses []struct {
		Endpoint string `yaml:"endpoint"`
		Status   int    `yaml:"status"`
		Body     any    `yaml:"body"`
	} `yaml:"responses"`
}

// LoadOverrides reads canned responses from a YAML file.
func LoadOverrides(path string) (map[string]Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes canned responses keyed by endpoint.
func ParseOverrides(data []byte) (map[string]Response, error) {
	var file fixtureFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	out := make(map[string]Response, len(file.Responses))
	for i, r := range file.Responses {
		if r.Endpoint == "" {
			return nil, fmt.Errorf("fixture %d: endpoint is required", i)
		}
		body, err := json.Marshal(r.Body)
		if err != nil {
			return nil, fmt.Errorf("fixture %s: %w", r.Endpoint, err)
		}
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		out[r.Endpoint] = Response{Status: status, Body: body}
	}
	return out, nil
}
