// Package settings loads camera lists from the JSON and legacy XML forms
// described in spec §6, producing camconfig.CameraConfig values ready for
// CameraConfig.Validate(). Grounded on cmd/driver/config.go's pattern of a
// plain encoding/json-decoded struct plus a separate Check()/Validate()
// defaulting pass; plain encoding/json (and, for the legacy form,
// encoding/xml) are used here rather than pulling in a TOML/YAML library
// that nothing else in this module needs.
package settings

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/warpcomdev/ipvideograbber/internal/grabber/camconfig"
)

// jsonAuthType mirrors spec §6's "auth-type" string enumeration.
type jsonAuthType string

const (
	authTypeNone   jsonAuthType = "NONE"
	authTypeBasic  jsonAuthType = "BASIC"
	authTypeCookie jsonAuthType = "COOKIE"
)

// jsonEntry is one element of the JSON settings array.
type jsonEntry struct {
	Name     string       `json:"name"`
	URL      string       `json:"url"`
	Username string       `json:"username"`
	Password string       `json:"password"`
	AuthType jsonAuthType `json:"auth-type"`
}

func (e jsonEntry) toConfig() camconfig.CameraConfig {
	cfg := camconfig.CameraConfig{
		Name:     e.Name,
		URL:      e.URL,
		Username: e.Username,
		Password: e.Password,
	}
	switch strings.ToUpper(string(e.AuthType)) {
	case string(authTypeBasic):
		cfg.AuthMode = camconfig.AuthBasic
	case string(authTypeCookie):
		cfg.AuthMode = camconfig.AuthCookie
	default:
		// Unknown or empty auth-type values default to NONE (spec §6).
		cfg.AuthMode = camconfig.AuthNone
	}
	return cfg
}

// LoadJSON reads a JSON array of camera entries from path and returns
// validated CameraConfig values.
func LoadJSON(path string) ([]camconfig.CameraConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeJSON(f)
}

// DecodeJSON is LoadJSON's reader-based counterpart, split out for tests.
func DecodeJSON(r io.Reader) ([]camconfig.CameraConfig, error) {
	var entries []jsonEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode json settings: %w", err)
	}
	configs := make([]camconfig.CameraConfig, 0, len(entries))
	for _, e := range entries {
		cfg := e.toConfig()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}

// xmlStreams is the legacy <streams><stream .../></streams> form
// mentioned in spec §6 as equivalent to the JSON array.
type xmlStreams struct {
	XMLName xml.Name    `xml:"streams"`
	Streams []xmlStream `xml:"stream"`
}

type xmlStream struct {
	Name     string `xml:"name,attr"`
	URL      string `xml:"url,attr"`
	Username string `xml:"username,attr"`
	Password string `xml:"password,attr"`
}

// LoadXML reads the legacy XML settings form from path.
func LoadXML(path string) ([]camconfig.CameraConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeXML(f)
}

// DecodeXML is LoadXML's reader-based counterpart.
func DecodeXML(r io.Reader) ([]camconfig.CameraConfig, error) {
	var doc xmlStreams
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xml settings: %w", err)
	}
	configs := make([]camconfig.CameraConfig, 0, len(doc.Streams))
	for _, s := range doc.Streams {
		cfg := camconfig.CameraConfig{
			Name:     s.Name,
			URL:      s.URL,
			Username: s.Username,
			Password: s.Password,
			AuthMode: camconfig.AuthNone,
		}
		if cfg.Username != "" {
			cfg.AuthMode = camconfig.AuthBasic
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	return configs, nil
}
