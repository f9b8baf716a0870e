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

package options_test

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deploysched/scheduler/pkg/options"
)

func TestParseAppliesDefaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o, err := options.Parse(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, o.MaxAttempts)
	assert.Equal(t, 10*time.Second, o.LockTTL)
}

func TestParseFlagOverridesDefault(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	o, err := options.Parse(fs, []string{"-max-attempts", "5", "-http-addr", ":9090"})
	require.NoError(t, err)
	assert.Equal(t, 5, o.MaxAttempts)
	assert.Equal(t, ":9090", o.HTTPAddr)
}
