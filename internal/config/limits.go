// Package config defines the compile-time limits of spec §6 as a
// runtime-loadable structure, following gcsfuse's go.mod-grounded choice
// of Viper for configuration and Cobra/pflag for exposing it on the
// command line (cmd/kernel wires this package up the way gcsfuse's cmd/
// package wires up its own flag set).
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Limits mirrors spec §6's compile-time constants: OPEN_MAX per process,
// OPEN_FILE_MAX system-wide, PID_MIN..PID_MAX, PROC_MAX, PATH_MAX,
// ARG_MAX. SECTION_SIZE is not configurable here; it is the fixed
// table.SectionSize constant.
type Limits struct {
	PIDMin      int32  `mapstructure:"pid_min"`
	PIDMax      int32  `mapstructure:"pid_max"`
	ProcMax     uint32 `mapstructure:"proc_max"`
	OpenMax     int    `mapstructure:"open_max"`
	OpenFileMax uint64 `mapstructure:"open_file_max"`
	PathMax     int    `mapstructure:"path_max"`
	ArgMax      int    `mapstructure:"arg_max"`
}

// Default returns the limits a single-node teaching deployment ships
// with: PID_MIN=1 (PID 0 is reserved for "no parent"), a PID space large
// enough to exercise the sparse Table design (spec §9: "amortise memory
// for the very large PID space (≈ 30k PIDs)").
func Default() Limits {
	return Limits{
		PIDMin:      1,
		PIDMax:      30000,
		ProcMax:     4096,
		OpenMax:     128,
		OpenFileMax: 16384,
		PathMax:     1024,
		ArgMax:      64 * 1024,
	}
}

// Load reads limits from Viper configuration: defaults, overridden by a
// config file (if configured), overridden by KERNEL_* environment
// variables. Callers that also want flag overrides should BindPFlags
// against v before calling Load.
func Load(v *viper.Viper) (Limits, error) {
	l := Default()

	v.SetEnvPrefix("kernel")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("pid_min", l.PIDMin)
	v.SetDefault("pid_max", l.PIDMax)
	v.SetDefault("proc_max", l.ProcMax)
	v.SetDefault("open_max", l.OpenMax)
	v.SetDefault("open_file_max", l.OpenFileMax)
	v.SetDefault("path_max", l.PathMax)
	v.SetDefault("arg_max", l.ArgMax)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Limits{}, err
		}
	}

	var out Limits
	if err := v.Unmarshal(&out); err != nil {
		return Limits{}, err
	}
	return out, nil
}
