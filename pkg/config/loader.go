/*
Copyright 2017 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"os"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	envPrefix        = "ATS"
	defaultCfgName   = "ats-console"
	fallbackCfgPath  = "/etc/ats"
)

// Load reads configuration from (in increasing priority) built-in defaults,
// a config file (JSON/YAML/TOML, located via the usual viper search path or
// the ATS_CONFIG env var), and ATS_-prefixed environment variables.
func Load(extraPaths ...string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName(defaultCfgName)
	v.AddConfigPath(".")
	v.AddConfigPath(fallbackCfgPath)
	for _, p := range extraPaths {
		v.AddConfigPath(p)
	}

	if forced := os.Getenv("ATS_CONFIG"); forced != "" {
		v.SetConfigFile(forced)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.Wrap(err, "reading ats config")
		}
		logrus.Trace("no config file found, using defaults and environment")
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshalling ats config")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}

	return cfg, nil
}
