package conf

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDuration_MarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		duration Duration
		expected string
	}{
		{"zero", Duration(0), `"0s"`},
		{"30 seconds", Duration(30 * time.Second), `"30s"`},
		{"15 minutes", Duration(15 * time.Minute), `"15m0s"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := json.Marshal(tt.duration)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(b))
		})
	}
}

func TestDuration_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected Duration
		wantErr  bool
	}{
		{"string", `"45s"`, Duration(45 * time.Second), false},
		{"compound string", `"1h30m"`, Duration(90 * time.Minute), false},
		{"seconds number", `900`, Duration(15 * time.Minute), false},
		{"fractional seconds", `1.5`, Duration(1500 * time.Millisecond), false},
		{"numeric string", `"120"`, Duration(2 * time.Minute), false},
		{"null", `null`, Duration(0), false},
		{"garbage", `"soon"`, 0, true},
		{"negative", `-5`, 0, true},
		{"bool", `true`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := Duration(time.Second)
			err := json.Unmarshal([]byte(tt.input), &d)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestDuration_YAMLRoundTrip(t *testing.T) {
	t.Parallel()

	type cfg struct {
		Interval Duration `yaml:"interval"`
		Window   Duration `yaml:"window"`
	}

	var c cfg
	require.NoError(t, yaml.Unmarshal([]byte("interval: 300\nwindow: 1m\n"), &c))
	assert.Equal(t, Duration(5*time.Minute), c.Interval)
	assert.Equal(t, Duration(time.Minute), c.Window)

	out, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(out), "interval: 5m0s")
	assert.Contains(t, string(out), "window: 1m0s")
}

func TestDuration_YAMLRejectsMapping(t *testing.T) {
	t.Parallel()

	var c struct {
		Interval Duration `yaml:"interval"`
	}
	err := yaml.Unmarshal([]byte("interval:\n  value: 3\n"), &c)
	require.Error(t, err)
}

func TestDurationDecodeHook(t *testing.T) {
	t.Parallel()

	type target struct {
		Window  Duration      `mapstructure:"window"`
		Seconds Duration      `mapstructure:"seconds"`
		Std     time.Duration `mapstructure:"std"`
		Origins []string      `mapstructure:"origins"`
	}

	var out target
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: DurationDecodeHook(),
		Result:     &out,
	})
	require.NoError(t, err)

	require.NoError(t, dec.Decode(map[string]any{
		"window":  "2m",
		"seconds": 30,
		"std":     "5s",
		"origins": "http://a.test,http://b.test",
	}))

	assert.Equal(t, Duration(2*time.Minute), out.Window)
	assert.Equal(t, Duration(30*time.Second), out.Seconds)
	assert.Equal(t, 5*time.Second, out.Std)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, out.Origins)
	assert.Equal(t, durationType, reflect.TypeOf(out.Window))
}
