/*
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

// Package options loads the scheduler's runtime configuration: defaults,
// overridden by an optional YAML file, overridden in turn by environment
// variables (SCHEDULER_ prefix), with explicitly set flags taking precedence
// over both, all through spf13/viper. Only the store DSN, the two Redis
// addresses and the HTTP address are read from the file and the environment;
// every other setting comes from its flag or default. Neither the worker nor the admission
// layer reads an environment variable directly; they take an Options value.
package options

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Options is the fully-resolved configuration for one scheduler process.
// Both cmd/scheduler and cmd/apiserver parse all of these flags through
// operator.NewOperator.
type Options struct {
	StoreDSN      string
	QueueRedisAddr string
	LockRedisAddr string

	WorkerConcurrency int
	HTTPAddr          string

	// The five defaulted tunables of spec §6.
	QueueVisibility time.Duration
	LockTTL         time.Duration
	RetryBase       time.Duration
	RetryCap        time.Duration
	MaxAttempts     int

	ConfigFile string
}

// Defaults matches spec §6's suggested defaults.
func Defaults() Options {
	return Options{
		StoreDSN:          "postgres://localhost:5432/scheduler?sslmode=disable",
		QueueRedisAddr:    "localhost:6379",
		LockRedisAddr:     "localhost:6379",
		WorkerConcurrency: 4,
		HTTPAddr:          ":8080",
		QueueVisibility:   30 * time.Second,
		LockTTL:           10 * time.Second,
		RetryBase:         5 * time.Second,
		RetryCap:          60 * time.Second,
		MaxAttempts:       20,
	}
}

// Parse builds Options from flags, then layers environment variables and an
// optional YAML config file (--config or SCHEDULER_CONFIG_FILE) over the
// defaults, with flags taking precedence over env, and env over the file.
func Parse(fs *flag.FlagSet, args []string) (Options, error) {
	o := Defaults()

	fs.StringVar(&o.StoreDSN, "store-dsn", o.StoreDSN, "Postgres connection string for the durable store")
	fs.StringVar(&o.QueueRedisAddr, "queue-redis-addr", o.QueueRedisAddr, "Redis address backing the job queue")
	fs.StringVar(&o.LockRedisAddr, "lock-redis-addr", o.LockRedisAddr, "Redis address backing the cluster lock service")
	fs.IntVar(&o.WorkerConcurrency, "worker-concurrency", o.WorkerConcurrency, "number of worker loops to run")
	fs.StringVar(&o.HTTPAddr, "http-addr", o.HTTPAddr, "listen address for the admission HTTP server")
	fs.DurationVar(&o.QueueVisibility, "queue-visibility-timeout", o.QueueVisibility, "queue reservation visibility timeout")
	fs.DurationVar(&o.LockTTL, "lock-ttl", o.LockTTL, "cluster lock lease TTL")
	fs.DurationVar(&o.RetryBase, "retry-base", o.RetryBase, "capped-exponential backoff base delay")
	fs.DurationVar(&o.RetryCap, "retry-cap", o.RetryCap, "capped-exponential backoff cap")
	fs.IntVar(&o.MaxAttempts, "max-attempts", o.MaxAttempts, "poison-pill attempt threshold")
	fs.StringVar(&o.ConfigFile, "config", "", "optional YAML config file overriding the above")

	if err := fs.Parse(args); err != nil {
		return Options{}, fmt.Errorf("parsing flags: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("SCHEDULER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if o.ConfigFile != "" {
		v.SetConfigFile(o.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Options{}, fmt.Errorf("reading config file %s: %w", o.ConfigFile, err)
		}
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	overrideIfSet(v, explicit, "store-dsn", &o.StoreDSN)
	overrideIfSet(v, explicit, "queue-redis-addr", &o.QueueRedisAddr)
	overrideIfSet(v, explicit, "lock-redis-addr", &o.LockRedisAddr)
	overrideIfSet(v, explicit, "http-addr", &o.HTTPAddr)

	return o, nil
}

// overrideIfSet applies a viper-resolved (env or file) value only when the
// corresponding flag was left at its default, so an explicit flag always
// wins.
func overrideIfSet(v *viper.Viper, explicit map[string]bool, key string, dst *string) {
	if !explicit[key] && v.IsSet(key) {
		*dst = v.GetString(key)
	}
}
