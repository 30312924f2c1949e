// Copyright 2024-2026 Aiku AI

package chat

import (
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	up "go.mau.fi/util/configupgrade"
	"go.mau.fi/zeroconfig"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the settings of one chat session.
type Config struct {
	UserID         string `yaml:"user_id"`
	Password       string `yaml:"password"`
	ServerAddr     string `yaml:"server_addr"`
	Domain         string `yaml:"domain"`
	ClientResource string `yaml:"client_resource"`

	DirectTLS             bool   `yaml:"direct_tls"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify"`
	DialTimeout           string `yaml:"dial_timeout"`
	// PubSubService is the address of the pubsub service. Defaults to
	// "pubsub." followed by the domain.
	PubSubService string `yaml:"pubsub_service"`

	RoomMessageTemplate string `yaml:"room_message_template"`

	Rooms []AutoJoinRoom `yaml:"rooms"`

	Logging zeroconfig.Config `yaml:"logging"`

	dialTimeout         time.Duration      `yaml:"-"`
	roomMessageTemplate *template.Template `yaml:"-"`
}

// AutoJoinRoom is a room joined right after login.
type AutoJoinRoom struct {
	Room     string `yaml:"room"`
	Nickname string `yaml:"nickname"`
	Password string `yaml:"password"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

// PostProcess validates the config and prepares derived values.
func (c *Config) PostProcess() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if c.Domain == "" && !strings.Contains(c.UserID, "@") {
		return fmt.Errorf("domain is required when user_id has no domain")
	}
	c.dialTimeout = 30 * time.Second
	if c.DialTimeout != "" {
		timeout, err := time.ParseDuration(c.DialTimeout)
		if err != nil {
			return fmt.Errorf("invalid dial_timeout: %w", err)
		}
		c.dialTimeout = timeout
	}
	for i, room := range c.Rooms {
		if room.Room == "" {
			return fmt.Errorf("rooms[%d]: room is required", i)
		}
	}
	var err error
	c.roomMessageTemplate, err = template.New("room_message").Parse(c.RoomMessageTemplate)
	if err != nil {
		return fmt.Errorf("invalid room_message_template: %w", err)
	}
	return nil
}

// Server returns the connection settings.
func (c *Config) Server() ServerConfig {
	return ServerConfig{
		Addr:           c.ServerAddr,
		Domain:         c.Domain,
		ClientResource: c.ClientResource,
	}
}

// Identity returns the identity the config logs in as.
func (c *Config) Identity() UserIdentity {
	return identityForLogin(c.UserID, c.Server())
}

// DialTimeoutDuration returns the parsed dial_timeout. Only valid after
// PostProcess.
func (c *Config) DialTimeoutDuration() time.Duration {
	return c.dialTimeout
}

// FormatRoomMessage renders evt with room_message_template.
func (c *Config) FormatRoomMessage(evt RoomMessageEvent) string {
	fallback := fmt.Sprintf("[%s] %s: %s", evt.Room, evt.DisplayName, evt.Body)
	if c.roomMessageTemplate == nil {
		return fallback
	}
	var sb strings.Builder
	if err := c.roomMessageTemplate.Execute(&sb, evt); err != nil {
		return fallback
	}
	return sb.String()
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "user_id")
	helper.Copy(up.Str, "password")
	helper.Copy(up.Str, "server_addr")
	helper.Copy(up.Str, "domain")
	helper.Copy(up.Str, "client_resource")
	helper.Copy(up.Bool, "direct_tls")
	helper.Copy(up.Bool, "tls_insecure_skip_verify")
	helper.Copy(up.Str, "dial_timeout")
	helper.Copy(up.Str, "pubsub_service")
	helper.Copy(up.Str, "room_message_template")
	helper.Copy(up.List, "rooms")
	helper.Copy(up.Map, "logging")
}

// ConfigUpgrader returns the upgrader that merges an existing config file
// into the current example config.
func ConfigUpgrader() *up.StructUpgrader {
	return &up.StructUpgrader{
		SimpleUpgrader: up.SimpleUpgrader(upgradeConfig),
		Blocks: [][]string{
			{"rooms"},
			{"logging"},
		},
		Base: ExampleConfig,
	}
}
