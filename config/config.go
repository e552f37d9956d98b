package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

type LDAPConfiguration struct {
	URL           string `validate:"omitempty,url"`
	BindDN        string `validate:"required_with=URL"`
	BindPassword  string
	BaseDN        string `validate:"required_with=URL"`
	UUIDAttribute string
	GroupRoles    string `validate:"required_with=URL"`
}

type LineageConfiguration struct {
	DSN                string `validate:"required"`
	ManagementDSN      string
	ListenAddr         string `validate:"required,hostname_port"`
	LogLevel           string `validate:"oneof=debug info warn error"`
	AllowedObjectTypes []string
	PolicyFile         string   `validate:"omitempty,file"`
	EventsBackend      string   `validate:"oneof=none nats kafka"`
	NATSURL            string   `validate:"required_if=EventsBackend nats"`
	KafkaBrokers       []string `validate:"required_if=EventsBackend kafka,dive,hostname_port"`
	KafkaTopic         string   `validate:"required_if=EventsBackend kafka"`
	LDAP               LDAPConfiguration
}

var validate = validator.New()

// LoadEnvConfig reads configName into the environment, if it exists, and
// builds the configuration from LINEAGE_* variables. Variables already set in
// the environment win over the file.
func LoadEnvConfig(configName string) (LineageConfiguration, error) {
	if configName != "" {
		if err := godotenv.Load(configName); err != nil && !os.IsNotExist(err) {
			return LineageConfiguration{}, fmt.Errorf("error loading %s: %w", configName, err)
		}
	}

	cfg := LineageConfiguration{
		DSN:                os.Getenv("LINEAGE_DSN"),
		ManagementDSN:      os.Getenv("LINEAGE_MANAGEMENT_DSN"),
		ListenAddr:         envOr("LINEAGE_LISTEN_ADDR", "localhost:8080"),
		LogLevel:           envOr("LINEAGE_LOG_LEVEL", "info"),
		AllowedObjectTypes: splitList(os.Getenv("LINEAGE_ALLOWED_OBJECT_TYPES")),
		PolicyFile:         os.Getenv("LINEAGE_POLICY_FILE"),
		EventsBackend:      envOr("LINEAGE_EVENTS_BACKEND", "none"),
		NATSURL:            os.Getenv("LINEAGE_NATS_URL"),
		KafkaBrokers:       splitList(os.Getenv("LINEAGE_KAFKA_BROKERS")),
		KafkaTopic:         envOr("LINEAGE_KAFKA_TOPIC", "lineage.events"),
		LDAP: LDAPConfiguration{
			URL:           os.Getenv("LINEAGE_LDAP_URL"),
			BindDN:        os.Getenv("LINEAGE_LDAP_BIND_DN"),
			BindPassword:  os.Getenv("LINEAGE_LDAP_BIND_PASSWORD"),
			BaseDN:        os.Getenv("LINEAGE_LDAP_BASE_DN"),
			UUIDAttribute: os.Getenv("LINEAGE_LDAP_UUID_ATTRIBUTE"),
			GroupRoles:    os.Getenv("LINEAGE_LDAP_GROUP_ROLES"),
		},
	}

	if err := validate.Struct(cfg); err != nil {
		return LineageConfiguration{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// splitList splits a comma separated value, dropping empty entries.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
