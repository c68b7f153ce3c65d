// Package config derives and validates everything an installation run
// needs before any side effect happens. Precedence is flags over YAML
// file over version-derived defaults.
package config

import (
	"bytes"
	"fmt"
	"os"

	goversion "github.com/hashicorp/go-version"
	"gopkg.in/yaml.v3"
)

// DefaultJDBCVersion is the MySQL Connector/J release bundled into the
// Jira container when a database is provisioned.
const DefaultJDBCVersion = "9.4.0"

// MySQL holds the database side of a run. Only populated when the
// target major needs an external database.
type MySQL struct {
	ContainerName string `yaml:"container"`
	Database      string `yaml:"database"`
	Volume        string `yaml:"volume"`
	Hostname      string `yaml:"hostname"`
	RootPassword  string `yaml:"root_password"`
	User          string `yaml:"user"`
	Password      string `yaml:"password"`
	Image         string `yaml:"image"`
	Port          string `yaml:"port"`
}

// Install is the resolved configuration for one installation run.
type Install struct {
	Version       string
	Port          int
	ContainerName string
	NetworkName   string
	WithDatabase  bool
	MySQL         MySQL
	JDBCVersion   string
}

// Image is the Jira image reference for the target version.
func (c Install) Image() string {
	return "atlassian/jira-software:" + c.Version
}

func (c Install) JDBCTar() string {
	return fmt.Sprintf("mysql-connector-j-%s.tar.gz", c.JDBCVersion)
}

func (c Install) JDBCURL() string {
	return "https://dev.mysql.com/get/Downloads/Connector-J/" + c.JDBCTar()
}

func (c Install) JDBCFolder() string {
	return "mysql-connector-j-" + c.JDBCVersion
}

// ForVersion builds the version-derived defaults. Jira 8.x/9.x run on
// the built-in database and publish 8081; 10.x/11.x get a MySQL
// container and publish 8080. Any other major is rejected here, before
// anything touches the daemon.
func ForVersion(ver string) (Install, error) {
	parsed, err := goversion.NewVersion(ver)
	if err != nil {
		return Install{}, fmt.Errorf("invalid Jira version %q: %w", ver, err)
	}
	c := Install{
		Version:       ver,
		ContainerName: "jira" + ver,
		NetworkName:   "jira_network",
		JDBCVersion:   DefaultJDBCVersion,
	}
	switch parsed.Segments()[0] {
	case 8, 9:
		c.Port = 8081
	case 10, 11:
		c.Port = 8080
		c.WithDatabase = true
		c.MySQL = MySQL{
			ContainerName: ver + "_mysql",
			Database:      ver + "_db",
			Volume:        ver + "_mysql_data",
			Hostname:      ver + "_mysql",
			RootPassword:  "root_password",
			User:          "jira_user",
			Password:      "jira_password",
			Image:         "mysql:8.0",
			Port:          "3306",
		}
	default:
		return Install{}, fmt.Errorf("unsupported Jira version %q: only 8.x, 9.x, 10.x and 11.x are supported", ver)
	}
	return c, nil
}

// Overrides is the optional advanced-settings file. Zero values keep
// the version-derived defaults.
type Overrides struct {
	Port          int    `yaml:"port"`
	ContainerName string `yaml:"container"`
	NetworkName   string `yaml:"network"`
	JDBCVersion   string `yaml:"jdbc_version"`
	MySQL         MySQL  `yaml:"mysql"`
}

// LoadOverrides reads and decodes a YAML overrides file. Unknown keys
// are an error so typos do not silently fall back to defaults.
func LoadOverrides(path string) (Overrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Overrides{}, fmt.Errorf("read config file: %w", err)
	}
	var o Overrides
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return o, nil
}

// Apply layers non-zero override fields on top of c. Database overrides
// are ignored for versions that do not provision one.
func (o Overrides) Apply(c *Install) {
	if o.Port > 0 {
		c.Port = o.Port
	}
	setIf(&c.ContainerName, o.ContainerName)
	setIf(&c.NetworkName, o.NetworkName)
	setIf(&c.JDBCVersion, o.JDBCVersion)
	if !c.WithDatabase {
		return
	}
	setIf(&c.MySQL.ContainerName, o.MySQL.ContainerName)
	setIf(&c.MySQL.Database, o.MySQL.Database)
	setIf(&c.MySQL.Volume, o.MySQL.Volume)
	setIf(&c.MySQL.RootPassword, o.MySQL.RootPassword)
	setIf(&c.MySQL.User, o.MySQL.User)
	setIf(&c.MySQL.Password, o.MySQL.Password)
	setIf(&c.MySQL.Image, o.MySQL.Image)
	setIf(&c.MySQL.Port, o.MySQL.Port)
	if o.MySQL.Hostname != "" {
		c.MySQL.Hostname = o.MySQL.Hostname
	} else if o.MySQL.ContainerName != "" {
		// The app reaches MySQL by container name on the shared network.
		c.MySQL.Hostname = o.MySQL.ContainerName
	}
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Validate checks the fully layered configuration.
func (c Install) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.ContainerName == "" {
		return fmt.Errorf("container name must not be empty")
	}
	if c.NetworkName == "" {
		return fmt.Errorf("network name must not be empty")
	}
	if c.WithDatabase {
		switch {
		case c.MySQL.ContainerName == "":
			return fmt.Errorf("mysql container name must not be empty")
		case c.MySQL.Database == "":
			return fmt.Errorf("mysql database name must not be empty")
		case c.MySQL.Volume == "":
			return fmt.Errorf("mysql volume name must not be empty")
		}
	}
	return nil
}
