package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atasvc/sonata/internal/obserr"
)

// Load reads and merges path over Defaults(), treating a missing file as
// "use defaults" rather than an error.
func Load(path string) (Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, obserr.Wrap(obserr.FileIOError, "read config", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, obserr.Wrap(obserr.InvalidParameters, "parse config", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the few cross-field invariants a bad config file could
// otherwise violate silently.
func Validate(cfg Config) error {
	if cfg.Strategy.MaxSequentialFailedActivities <= 0 {
		return obserr.New(obserr.InvalidParameters, "strategy.max_sequential_failed_activities must be > 0")
	}
	if cfg.Archive.DiskErrorPercentFull <= cfg.Archive.DiskWarningPercentFull {
		return obserr.New(obserr.InvalidParameters, "archive.disk_error_percent_full must exceed disk_warning_percent_full")
	}
	if cfg.TargetSel.MinBeamSepFactor <= 0 {
		return obserr.New(obserr.InvalidParameters, "target_selector.min_beam_sep_factor must be > 0")
	}
	return nil
}

// AttenuationTable is the IF-attenuation dB offset table, keyed by
// frequency range.
type AttenuationTable struct {
	Entries []AttenuationEntry
}

type AttenuationEntry struct {
	LowMHz, HighMHz float64
	OffsetDB        float64
}

// LookupDB returns the attenuation offset for freqMHz, or ok=false if no
// range covers it.
func (t AttenuationTable) LookupDB(freqMHz float64) (float64, bool) {
	for _, e := range t.Entries {
		if freqMHz >= e.LowMHz && freqMHz < e.HighMHz {
			return e.OffsetDB, true
		}
	}
	return 0, false
}

// LoadAttenuationTable parses a yaml attenuation table file.
func LoadAttenuationTable(path string) (AttenuationTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return AttenuationTable{}, obserr.Wrap(obserr.FileIOError, "read attenuation table", err)
	}
	var raw struct {
		Entries []AttenuationEntry `yaml:"entries"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return AttenuationTable{}, obserr.Wrap(obserr.InvalidParameters, "parse attenuation table", err)
	}
	return AttenuationTable{Entries: raw.Entries}, nil
}

// RFIBand is one permanent RFI mask entry.
type RFIBand struct {
	CenterFreqMHz float64
	WidthHz       float64
}

// RFIMask is the permanent RFI mask: a list of (centerFreq, widthHz) bands.
type RFIMask struct {
	Bands []RFIBand
}

// Overlaps reports whether freqMHz with a half-bandwidth of halfBWMHz
// intersects any masked band.
func (m RFIMask) Overlaps(freqMHz, halfBWMHz float64) bool {
	for _, b := range m.Bands {
		halfWidthMHz := b.WidthHz / 1e6 / 2
		if freqMHz+halfBWMHz >= b.CenterFreqMHz-halfWidthMHz && freqMHz-halfBWMHz <= b.CenterFreqMHz+halfWidthMHz {
			return true
		}
	}
	return false
}

// LoadRFIMask parses a yaml permanent RFI mask file.
func LoadRFIMask(path string) (RFIMask, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RFIMask{}, obserr.Wrap(obserr.FileIOError, "read rfi mask", err)
	}
	var raw struct {
		Bands []RFIBand `yaml:"bands"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return RFIMask{}, obserr.Wrap(obserr.InvalidParameters, "parse rfi mask", err)
	}
	return RFIMask{Bands: raw.Bands}, nil
}
