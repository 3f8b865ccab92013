package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// StorageConfig describes where a project's recordings are written.
// An empty bucket means recordings stay on the egress worker's local disk.
type StorageConfig struct {
	Bucket         string `json:"bucket,omitempty"`
	Region         string `json:"region,omitempty"`
	Endpoint       string `json:"endpoint,omitempty"`
	AccessKey      string `json:"access_key,omitempty"`
	Secret         string `json:"secret,omitempty"`
	PathPrefix     string `json:"path_prefix,omitempty"`
	ForcePathStyle bool   `json:"force_path_style,omitempty"`
}

func (c StorageConfig) IsS3() bool {
	return c.Bucket != ""
}

// Redacted hides credentials before the config leaves the service.
func (c StorageConfig) Redacted() StorageConfig {
	if c.Secret != "" {
		c.Secret = "********"
	}
	return c
}

// Scan implements the sql.Scanner interface for the jsonb column.
func (c *StorageConfig) Scan(value interface{}) error {
	if value == nil {
		*c = StorageConfig{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("StorageConfig: unsupported scan type")
	}
}

// Value implements the driver.Valuer interface.
func (c StorageConfig) Value() (driver.Value, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Project owns sessions, API keys and devices.
type Project struct {
	ID        string        `json:"id" db:"id"`
	OwnerID   string        `json:"owner_id" db:"owner_id"`
	Name      string        `json:"name" db:"name"`
	Storage   StorageConfig `json:"storage" db:"storage"`
	MediaURL  string        `json:"media_url,omitempty" db:"media_url"`
	CreatedAt time.Time     `json:"created_at" db:"created_at"`
}

func (p *Project) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrInvalidProject.With("validate", "name", errors.New("name is required"))
	}
	if len(name) > 100 {
		return ErrInvalidProject.With("validate", "name", errors.New("longer than 100 characters"))
	}
	if p.Storage.IsS3() && (p.Storage.AccessKey == "" || p.Storage.Secret == "") {
		return ErrInvalidProject.With("validate", "storage", errors.New("s3 storage requires access key and secret"))
	}
	return nil
}

// CanBeManagedBy reports whether user may operate on the project.
func (p *Project) CanBeManagedBy(user *User) bool {
	if user == nil {
		return false
	}
	return user.IsAdmin || p.OwnerID == user.ID
}
