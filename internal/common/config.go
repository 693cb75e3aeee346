package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Portal      PortalConfig  `toml:"portal"`
	Run         RunConfig     `toml:"run"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
}

// PortalConfig describes the helpdesk portal and the timing bounds used when
// driving it. Selectors are configurable because the vendor occasionally
// renames controls between portal releases.
type PortalConfig struct {
	URL          string          `toml:"url" validate:"required,url"`
	SessionFile  string          `toml:"session_file"`  // cookie snapshot reused across runs
	LoginTimeout time.Duration   `toml:"login_timeout"` // bound for interactive login (incl. MFA)
	StepTimeout  time.Duration   `toml:"step_timeout"`  // default bound for a single form step
	PollInterval time.Duration   `toml:"poll_interval"` // polling cadence while waiting for controls
	Headless     bool            `toml:"headless"`      // headless breaks interactive login; test use only
	Selectors    SelectorsConfig `toml:"selectors"`
}

// SelectorsConfig holds the portal control selectors. Day cells carry a
// deterministic id derived from the date, so that entry is a format string.
type SelectorsConfig struct {
	NewEntry        string `toml:"new_entry"`
	DateField       string `toml:"date_field"`
	DateLabel       string `toml:"date_label"`
	CalendarPrev    string `toml:"calendar_prev"`
	CalendarNext    string `toml:"calendar_next"`
	CalendarMonth   string `toml:"calendar_month"`
	DayCell         string `toml:"day_cell"` // e.g. "td[data-date='%04d-%02d-%02d']"
	HourPopup       string `toml:"hour_popup"`
	HourOption      string `toml:"hour_option"` // %s = hour text
	MinutePopup     string `toml:"minute_popup"`
	MinuteOption    string `toml:"minute_option"` // %s = minute text
	TitleField      string `toml:"title_field"`
	DescriptionArea string `toml:"description_area"`
	TypeTree        string `toml:"type_tree"`
	CategoryTree    string `toml:"category_tree"`
	ServiceTree     string `toml:"service_tree"`
	TreeNode        string `toml:"tree_node"` // %s = node label
	GroupFilter     string `toml:"group_filter"`
	GroupOption     string `toml:"group_option"`
	GroupOptionAttr string `toml:"group_option_attr"` // attribute matched against the filter text
	SubmitButton    string `toml:"submit_button"`
	ConfirmationID  string `toml:"confirmation_id"`
}

// RunConfig controls the orchestrator's retry-by-rerun policy, the ticket
// classification defaults, and the optional watch schedule.
type RunConfig struct {
	RetryFailed     bool     `toml:"retry_failed"`      // rerun reconsiders FAILED rows
	RetryInProgress bool     `toml:"retry_in_progress"` // rerun reconsiders rows that crashed mid-flight
	Schedule        string   `toml:"schedule"`          // cron expression for watch mode, empty = disabled
	TypeLabel       string   `toml:"type_label"`
	CategoryPath    []string `toml:"category_path"`
	ServicePath     []string `toml:"service_path"`
	GroupFilter     string   `toml:"group_filter"`
}

type StorageConfig struct {
	StateDir string       `toml:"state_dir"` // per-spreadsheet resume state files
	Badger   BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration for the run history
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults. Selector defaults
// match the current portal release; override them from TOML when the vendor
// ships a new skin.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "production",
		Portal: PortalConfig{
			URL:          "https://helpdesk.example.com/servicedesk/default.paw",
			SessionFile:  "./state/portal_storage_state.json",
			LoginTimeout: 180 * time.Second,
			StepTimeout:  15 * time.Second,
			PollInterval: 500 * time.Millisecond,
			Headless:     false,
			Selectors: SelectorsConfig{
				NewEntry:        "#newIncident",
				DateField:       "#creationDate",
				DateLabel:       "#creationDateLabel",
				CalendarPrev:    ".calendar .prev",
				CalendarNext:    ".calendar .next",
				CalendarMonth:   ".calendar .month-label",
				DayCell:         "td[data-date='%04d-%02d-%02d']",
				HourPopup:       "#hourSelector",
				HourOption:      "#hourSelector li[data-value='%s']",
				MinutePopup:     "#minuteSelector",
				MinuteOption:    "#minuteSelector li[data-value='%s']",
				TitleField:      "#incidentTitle",
				DescriptionArea: "#incidentDescription",
				TypeTree:        "#typeTree",
				CategoryTree:    "#categoryTree",
				ServiceTree:     "#serviceTree",
				TreeNode:        "span.tree-label[title='%s']",
				GroupFilter:     "#groupFilterBox",
				GroupOption:     "#groupResults li",
				GroupOptionAttr: "data-name",
				SubmitButton:    "#saveIncident",
				ConfirmationID:  "#incidentNumber",
			},
		},
		Run: RunConfig{
			RetryFailed:     true,
			RetryInProgress: true,
			Schedule:        "",
			TypeLabel:       "Incidencia",
			CategoryPath:    []string{"Soporte", "Puesto de trabajo"},
			ServicePath:     []string{"Servicios TI", "Soporte a usuarios"},
			GroupFilter:     "soporte",
		},
		Storage: StorageConfig{
			StateDir: "./state",
			Badger: BadgerConfig{
				Path:           "./data/history",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints on the merged configuration.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Portal.LoginTimeout <= 0 {
		return fmt.Errorf("invalid configuration: portal.login_timeout must be positive")
	}
	if c.Portal.StepTimeout <= 0 {
		return fmt.Errorf("invalid configuration: portal.step_timeout must be positive")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TICKETERO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if url := os.Getenv("TICKETERO_PORTAL_URL"); url != "" {
		config.Portal.URL = url
	}
	if sessionFile := os.Getenv("TICKETERO_PORTAL_SESSION_FILE"); sessionFile != "" {
		config.Portal.SessionFile = sessionFile
	}
	if timeout := os.Getenv("TICKETERO_PORTAL_LOGIN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Portal.LoginTimeout = d
		}
	}
	if timeout := os.Getenv("TICKETERO_PORTAL_STEP_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Portal.StepTimeout = d
		}
	}
	if headless := os.Getenv("TICKETERO_PORTAL_HEADLESS"); headless != "" {
		if b, err := strconv.ParseBool(headless); err == nil {
			config.Portal.Headless = b
		}
	}

	if retry := os.Getenv("TICKETERO_RUN_RETRY_FAILED"); retry != "" {
		if b, err := strconv.ParseBool(retry); err == nil {
			config.Run.RetryFailed = b
		}
	}
	if retry := os.Getenv("TICKETERO_RUN_RETRY_IN_PROGRESS"); retry != "" {
		if b, err := strconv.ParseBool(retry); err == nil {
			config.Run.RetryInProgress = b
		}
	}
	if schedule := os.Getenv("TICKETERO_RUN_SCHEDULE"); schedule != "" {
		config.Run.Schedule = schedule
	}

	if stateDir := os.Getenv("TICKETERO_STATE_DIR"); stateDir != "" {
		config.Storage.StateDir = stateDir
	}
	if badgerPath := os.Getenv("TICKETERO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("TICKETERO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("TICKETERO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, portalURL, stateDir, schedule string) {
	if portalURL != "" {
		config.Portal.URL = portalURL
	}
	if stateDir != "" {
		config.Storage.StateDir = stateDir
	}
	if schedule != "" {
		config.Run.Schedule = schedule
	}
}
