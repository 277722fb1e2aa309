package config

import (
	"sync"

	"EchoChat/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	current   *AppConfig
	currentMu sync.RWMutex
)

// Current returns the last successfully decoded config.
func Current() *AppConfig {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return current
}

func setCurrent(c *AppConfig) {
	currentMu.Lock()
	current = c
	currentMu.Unlock()
}

// Watch decodes v once, then re-decodes on every change of the backing
// file and hands the result to onChange. Invalid edits are logged and
// ignored; the previous config stays current.
func Watch(v *viper.Viper, onChange func(*AppConfig)) (*AppConfig, error) {
	c, err := Decode(v)
	if err != nil {
		return nil, err
	}
	setCurrent(c)

	if v.ConfigFileUsed() == "" {
		return c, nil
	}
	v.OnConfigChange(func(e fsnotify.Event) {
		next, err := Decode(v)
		if err != nil {
			logger.Warnf("[Config] reload %s rejected: %v", e.Name, err)
			return
		}
		setCurrent(next)
		logger.Infof("[Config] reloaded %s op=%s", e.Name, e.Op)
		if onChange != nil {
			onChange(next)
		}
	})
	v.WatchConfig()
	return c, nil
}
