// Package config is the layered operational configuration for the control
// plane: a narrow, normalized struct embedders and cmd/sonatad construct
// directly, described with gopkg.in/yaml.v3 tags so it loads straight from
// the operator's on-disk config file.
package config

import "time"

// Config is the full operational configuration for one sonatad process.
type Config struct {
	Scheduler   SchedulerConfig      `yaml:"scheduler"`
	Strategy    StrategyConfig       `yaml:"strategy"`
	Watchdog    WatchdogConfig       `yaml:"watchdog"`
	TargetSel   TargetSelectorConfig `yaml:"target_selector"`
	Archive     ArchiveConfig        `yaml:"archive"`
	Persistence PersistenceConfig    `yaml:"persistence"`
	Mail        MailConfig           `yaml:"mail"`
	FollowUp    FollowUpConfig       `yaml:"follow_up"`
	Topology    TopologyConfig       `yaml:"topology"`
	Ports       PortsConfig          `yaml:"ports"`
	Telemetry   TelemetryConfig      `yaml:"telemetry"`
}

// SchedulerConfig configures the Scheduler singleton.
type SchedulerConfig struct {
	StopOnStrategyFailure bool          `yaml:"stop_on_strategy_failure"`
	StatusSnapshotPeriod  time.Duration `yaml:"status_snapshot_period"`
	StatusSnapshotPath    string        `yaml:"status_snapshot_path"`
}

// StrategyConfig configures ActivityStrategy base back-off/repeat
// semantics.
type StrategyConfig struct {
	MaxSequentialFailedActivities int           `yaml:"max_sequential_failed_activities"`
	FailurePause                  time.Duration `yaml:"failure_pause"`
	StrategyRepeatCount           int           `yaml:"strategy_repeat_count"`
	TscopeReadyMaxFailures        int           `yaml:"tscope_ready_max_failures"`
	TscopeReadyWaitInterval       time.Duration `yaml:"tscope_ready_wait_interval"`
	TargetValidationWarnOnly      bool          `yaml:"target_validation_warn_only"`
	MailEnabled                   bool          `yaml:"mail_enabled"`
	MailHistoryDepth              int           `yaml:"mail_history_depth"`
}

// WatchdogConfig configures the per-stage fan-out timeout budget:
// `setup_overhead + data_collection_length + baseline_accumulation +
// component_specific_slack`.
type WatchdogConfig struct {
	SetupOverhead        time.Duration            `yaml:"setup_overhead"`
	BaselineAccumulation time.Duration            `yaml:"baseline_accumulation"`
	ComponentSlack       map[string]time.Duration `yaml:"component_slack"`
}

// TargetSelectorConfig configures the target selector.
type TargetSelectorConfig struct {
	SiteLongitudeRads       float64 `yaml:"site_longitude_rads"`
	SiteLatitudeRads        float64 `yaml:"site_latitude_rads"`
	HorizonRads             float64 `yaml:"horizon_rads"`
	MinBeamSepFactor        float64 `yaml:"min_beam_sep_factor"`
	MinUsableBandwidthMHz   float64 `yaml:"min_usable_bandwidth_mhz"`
	MinDXPercent            float64 `yaml:"min_dx_percent"`
	TotalBandwidthMHz       float64 `yaml:"total_bandwidth_mhz"`
	SmallestDetectorBWMHz   float64 `yaml:"smallest_detector_bandwidth_mhz"`
	BandLowMHz              float64 `yaml:"band_low_mhz"`
	BandHighMHz             float64 `yaml:"band_high_mhz"`
	SunAvoidanceRads        float64 `yaml:"sun_avoidance_rads"`
	MoonAvoidanceRads       float64 `yaml:"moon_avoidance_rads"`
	GeosatAvoidanceRads     float64 `yaml:"geosat_avoidance_rads"`
	ZenithAvoidanceRads     float64 `yaml:"zenith_avoidance_rads"`
	DecLowerLimitRads       float64 `yaml:"dec_lower_limit_rads"`
	DecUpperLimitRads       float64 `yaml:"dec_upper_limit_rads"`
	MaxDistanceLightYears   float64 `yaml:"max_distance_light_years"`
	WaitTargetCompleteSkips int     `yaml:"wait_target_complete_skips"`
}

// ArchiveConfig configures the archive directory layout and disk-safety
// thresholds.
type ArchiveConfig struct {
	Root                   string  `yaml:"root"`
	DiskErrorPercentFull   float64 `yaml:"disk_error_percent_full"`
	DiskWarningPercentFull float64 `yaml:"disk_warning_percent_full"`
	DebugLogMaxMegabytes   float64 `yaml:"debug_log_max_megabytes"`
}

// FollowUpConfig carries the activityType -> successorType chain. The map
// must be closed: every value appears as a key, and a type mapped to itself
// is a chain terminal.
type FollowUpConfig struct {
	TypeMap map[string]string `yaml:"type_map"`
}

type PersistenceConfig struct {
	DSN string `yaml:"dsn"`
}

type MailConfig struct {
	SMTPHost string   `yaml:"smtp_host"`
	SMTPPort int      `yaml:"smtp_port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
}

type TopologyConfig struct {
	ManifestPath         string `yaml:"manifest_path"`
	AttenuationTablePath string `yaml:"attenuation_table_path"`
	RFIMaskPath          string `yaml:"rfi_mask_path"`
}

// PortsConfig configures each component manager's listening port.
type PortsConfig struct {
	SSEControl  int `yaml:"sse_control"`
	RFC         int `yaml:"rfc"`
	IFC         int `yaml:"ifc"`
	DX          int `yaml:"dx"`
	Tscope      int `yaml:"tscope"`
	TestSig     int `yaml:"test_sig"`
	Archiver    int `yaml:"archiver"`
	Channelizer int `yaml:"channelizer"`
}

type TelemetryConfig struct {
	MetricsBackend string `yaml:"metrics_backend"` // "prom" | "otel" | "noop"
	StatusHTTPAddr string `yaml:"status_http_addr"`
	TracingEnabled bool   `yaml:"tracing_enabled"`
}

// Defaults returns the configuration new deployments start from: a fully
// populated starting point rather than zero values.
func Defaults() Config {
	return Config{
		Scheduler: SchedulerConfig{
			StopOnStrategyFailure: false,
			StatusSnapshotPeriod:  30 * time.Second,
			StatusSnapshotPath:    "systemlogs/status.txt",
		},
		Strategy: StrategyConfig{
			MaxSequentialFailedActivities: 5,
			FailurePause:                  60 * time.Second,
			StrategyRepeatCount:           0,
			TscopeReadyMaxFailures:        20,
			TscopeReadyWaitInterval:       15 * time.Second,
			TargetValidationWarnOnly:      false,
			MailEnabled:                   true,
			MailHistoryDepth:              10,
		},
		Watchdog: WatchdogConfig{
			SetupOverhead:        20 * time.Second,
			BaselineAccumulation: 10 * time.Second,
			ComponentSlack: map[string]time.Duration{
				"dx": 5 * time.Second, "ifc": 5 * time.Second, "tscope": 10 * time.Second,
			},
		},
		TargetSel: TargetSelectorConfig{
			MinBeamSepFactor:        1.5,
			MinDXPercent:            0.1,
			TotalBandwidthMHz:       20,
			SmallestDetectorBWMHz:   0.7,
			BandLowMHz:              1410,
			BandHighMHz:             1430,
			WaitTargetCompleteSkips: 3,
		},
		FollowUp: FollowUpConfig{
			TypeMap: map[string]string{
				"target":             "gridwest",
				"gridwest":           "gridsouth",
				"gridsouth":          "gridon",
				"gridon":             "gridnorth",
				"gridnorth":          "grideast",
				"grideast":           "targeton",
				"targeton":           "targetoff",
				"targetoff":          "targetonnofollowup",
				"targetonnofollowup": "targetonnofollowup",
				"off":                "off",
				"iftestfollowup":     "iftestfollowupon",
				"iftestfollowupon":   "iftestfollowupoff",
				"iftestfollowupoff":  "iftestfollowupoff",
				"rftestfollowup":     "rftestfollowup",
			},
		},
		Archive: ArchiveConfig{
			DiskErrorPercentFull:   95,
			DiskWarningPercentFull: 85,
			DebugLogMaxMegabytes:   25,
		},
		Ports: PortsConfig{
			SSEControl: 10001, RFC: 20001, IFC: 30001, DX: 40001,
			Tscope: 50001, TestSig: 60001, Archiver: 70001, Channelizer: 80001,
		},
		Telemetry: TelemetryConfig{MetricsBackend: "prom"},
	}
}
