package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Settings are the mutable operational knobs, stored as one JSON document.
type Settings struct {
	ConcurrentLimit            int   `json:"concurrent_limit"`
	UnlimitedConcurrentRefresh bool  `json:"unlimited_concurrent_refresh"`
	SeatCountOptions           []int `json:"seat_count_options"`
	RetryTimes                 int   `json:"retry_times"`
	BatchStaggerMs             int   `json:"batch_stagger_ms"`
	RefreshWindowMinutes       int   `json:"refresh_window_minutes"`
	RefreshIntervalMinutes     int   `json:"refresh_interval_minutes"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		ConcurrentLimit:            5,
		UnlimitedConcurrentRefresh: true,
		SeatCountOptions:           []int{18, 19, 20},
		RetryTimes:                 2,
		BatchStaggerMs:             200,
		RefreshWindowMinutes:       30,
		RefreshIntervalMinutes:     10,
	}
}

// BatchLimit resolves the effective concurrency ceiling for n items:
// unlimited means every item may start at once.
func (s Settings) BatchLimit(n int) int {
	if s.UnlimitedConcurrentRefresh || s.ConcurrentLimit <= 0 {
		return n
	}
	return s.ConcurrentLimit
}

// NextSeatCount returns the seat rotation step after last: the next option
// following last in seat_count_options, wrapping to the first; the first
// option when last is unknown.
func (s Settings) NextSeatCount(last int) int {
	opts := s.SeatCountOptions
	if len(opts) == 0 {
		opts = DefaultSettings().SeatCountOptions
	}
	for i, v := range opts {
		if v == last {
			return opts[(i+1)%len(opts)]
		}
	}
	return opts[0]
}

const settingsSchema = `{
	"type": "object",
	"additionalProperties": false,
	"properties": {
		"concurrent_limit":             {"type": "integer", "minimum": 1, "maximum": 100},
		"unlimited_concurrent_refresh": {"type": "boolean"},
		"seat_count_options":           {"type": "array", "items": {"type": "integer", "minimum": 1, "maximum": 500}, "minItems": 1},
		"retry_times":                  {"type": "integer", "minimum": 0, "maximum": 10},
		"batch_stagger_ms":             {"type": "integer", "minimum": 0, "maximum": 60000},
		"refresh_window_minutes":       {"type": "integer", "minimum": 1, "maximum": 1440},
		"refresh_interval_minutes":     {"type": "integer", "minimum": 1, "maximum": 1440}
	}
}`

type ValidationErrorItem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

type SettingsValidationError struct {
	Errors  []ValidationErrorItem `json:"validation_errors"`
	Message string                `json:"error"`
}

func (e *SettingsValidationError) Error() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	return "settings_validation_failed"
}

func AsSettingsValidationError(err error) (*SettingsValidationError, bool) {
	var out *SettingsValidationError
	ok := errors.As(err, &out)
	return out, ok
}

// GetSettings returns the stored settings document, falling back to defaults
// for a fresh database and for any fields an older document omits.
func (s *Store) GetSettings() (Settings, error) {
	out := DefaultSettings()

	var data string
	err := s.db.Read.QueryRow("SELECT data FROM settings WHERE id = 1").Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("get settings: %w", err)
	}

	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return DefaultSettings(), fmt.Errorf("decode settings document: %w", err)
	}
	return out, nil
}

// UpdateSettings validates the patch against the settings schema, merges it
// over the current document and persists the result. Unknown keys and
// out-of-range values are rejected without touching stored state.
func (s *Store) UpdateSettings(patch json.RawMessage) (Settings, error) {
	if err := validateSettingsPatch(patch); err != nil {
		return Settings{}, err
	}

	current, err := s.GetSettings()
	if err != nil {
		return Settings{}, err
	}
	if err := json.Unmarshal(patch, &current); err != nil {
		return Settings{}, fmt.Errorf("apply settings patch: %w", err)
	}

	doc, err := json.Marshal(current)
	if err != nil {
		return Settings{}, fmt.Errorf("encode settings document: %w", err)
	}

	_, err = s.db.Write.Exec(`
		INSERT INTO settings (id, data, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		string(doc), time.Now().UTC().Format(sqlTimeFormat),
	)
	if err != nil {
		return Settings{}, fmt.Errorf("store settings: %w", err)
	}
	return current, nil
}

func validateSettingsPatch(patch json.RawMessage) error {
	doc := strings.TrimSpace(string(patch))
	if doc == "" {
		doc = "{}"
	}

	schemaLoader := gojsonschema.NewStringLoader(settingsSchema)
	docLoader := gojsonschema.NewStringLoader(doc)
	res, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return &SettingsValidationError{Message: fmt.Sprintf("settings document unreadable: %v", err)}
	}
	if res.Valid() {
		return nil
	}

	items := make([]ValidationErrorItem, 0, len(res.Errors()))
	for _, item := range res.Errors() {
		items = append(items, ValidationErrorItem{
			Path:    item.Field(),
			Message: item.Description(),
			Value:   item.Value(),
		})
	}
	return &SettingsValidationError{
		Errors:  items,
		Message: "settings_validation_failed",
	}
}
