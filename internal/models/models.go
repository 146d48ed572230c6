// Package models defines the server directory data structures and the
// boundary validation that turns loosely shaped JSON or YAML into them.
package models

import (
	"strings"
	"time"
)

const (
	// DefaultServerName replaces a missing server name.
	DefaultServerName = "Unnamed Server"

	// DefaultLocation replaces a missing server location.
	DefaultLocation = "Unknown"
)

// ServerDescriptor is one entry of the community server registry.
type ServerDescriptor struct {
	Name        string   `json:"name" yaml:"name"`
	URL         string   `json:"url,omitempty" yaml:"url,omitempty"`
	Location    string   `json:"location,omitempty" yaml:"location,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Established string   `json:"established,omitempty" yaml:"established,omitempty"`
	Features    []string `json:"features,omitempty" yaml:"features,omitempty"`

	// Query is an optional host:port answering Source A2S queries.
	// When set it replaces the HTTP health probe.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`
}

// DisplayName returns the name or its default.
func (s ServerDescriptor) DisplayName() string {
	if s.Name == "" {
		return DefaultServerName
	}
	return s.Name
}

// DisplayLocation returns the location or its default.
func (s ServerDescriptor) DisplayLocation() string {
	if s.Location == "" {
		return DefaultLocation
	}
	return s.Location
}

// BaseURL returns the URL with trailing slashes removed.
func (s ServerDescriptor) BaseURL() string {
	return strings.TrimRight(s.URL, "/")
}

// Probeable reports whether the server has an address to probe.
func (s ServerDescriptor) Probeable() bool {
	return s.URL != ""
}

// InstanceDescriptor is one game mode served by a multi-instance server.
type InstanceDescriptor struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Features    []string `json:"features,omitempty"`
	Connections int      `json:"connections"`
}

// HealthReport is the decoded body of a successful health probe.
type HealthReport struct {
	// Players is nil when the server did not report a numeric count.
	Players *float64 `json:"players,omitempty"`
}

// StatusRecord is the persisted outcome of the latest probes of one card.
type StatusRecord struct {
	FirstSeen   time.Time  `json:"first_seen"`
	LastChecked time.Time  `json:"last_checked"`
	LastOnline  *time.Time `json:"last_online,omitempty"`
	CardID      string     `json:"card_id"`
	Name        string     `json:"name"`
	BaseURL     string     `json:"base_url"`
	Status      string     `json:"status"`
	Players     *float64   `json:"players,omitempty"`
	Instances   int        `json:"instances"`
	Updates     int64      `json:"updates"`
}
