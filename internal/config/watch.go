package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watch reloads the configuration whenever the config file changes on
// disk and passes the result to onChange. A rewrite that fails
// validation is dropped; the previous configuration stays in effect.
//
// Watch returns immediately; viper delivers change events on a
// background goroutine for the life of the process.
func Watch(onChange func(*Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}
		cfg, err := Load()
		if err != nil {
			return
		}
		onChange(cfg)
	})
	viper.WatchConfig()
}
