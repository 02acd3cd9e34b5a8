package config

import (
	"os"

	"github.com/spf13/viper"
)

// loadEnvFiles merges KEY=VALUE files into v if they exist.
// It is a best-effort helper for local development; errors are ignored.
func loadEnvFiles(v *viper.Viper, paths ...string) {
	v.SetConfigType("env")
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		_ = v.MergeConfig(f)
		_ = f.Close()
	}
}
