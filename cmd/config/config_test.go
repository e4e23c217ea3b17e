package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr bool
		wantCfg *Config
	}{
		{
			name: "defaults (no env set)",
			env:  map[string]string{},
			wantCfg: &Config{
				Port:          10010,
				SensorID:      0,
				SampleHz:      50,
				MaxSizeInMB:   500,
				OutputDir:     "recordings",
				DropDir:       "recordings/drop",
				CatalogPath:   "catalog.db",
				ScratchDir:    ".vd-scratch",
				PathToCapture: "vd-capture",
				SyncAttempts:  3,
			},
		},
		{
			name: "custom valid env",
			env: map[string]string{
				"PORT":               "12345",
				"SENSOR_ID":          "2",
				"SAMPLE_HZ":          "100",
				"MAX_SIZE_MB":        "250",
				"OUTPUT_DIR":         "/tmp/recordings",
				"DROP_DIR":           "/tmp/drop",
				"CATALOG_PATH":       "/tmp/catalog.db",
				"SCRATCH_DIR":        "/tmp/scratch",
				"CAPTURE_PATH":       "/usr/local/bin/vd-capture",
				"REGION_POLICY_PATH": "/etc/visiondrive/regions.yaml",
				"SYNC_ATTEMPTS":      "5",
			},
			wantCfg: &Config{
				Port:             12345,
				SensorID:         2,
				SampleHz:         100,
				MaxSizeInMB:      250,
				OutputDir:        "/tmp/recordings",
				DropDir:          "/tmp/drop",
				CatalogPath:      "/tmp/catalog.db",
				ScratchDir:       "/tmp/scratch",
				PathToCapture:    "/usr/local/bin/vd-capture",
				RegionPolicyPath: "/etc/visiondrive/regions.yaml",
				SyncAttempts:     5,
			},
		},
		{
			name: "negative sensor id",
			env: map[string]string{
				"SENSOR_ID": "-1",
			},
			wantErr: true,
		},
		{
			name: "zero sample rate",
			env: map[string]string{
				"SAMPLE_HZ": "0",
			},
			wantErr: true,
		},
		{
			name: "missing capture path (set to empty)",
			env: map[string]string{
				"CAPTURE_PATH": "",
			},
			wantErr: true,
		},
		{
			name: "missing output dir (set to empty)",
			env: map[string]string{
				"OUTPUT_DIR": "",
			},
			wantErr: true,
		},
		{
			name: "missing catalog path (set to empty)",
			env: map[string]string{
				"CATALOG_PATH": "",
			},
			wantErr: true,
		},
		{
			name: "zero sync attempts",
			env: map[string]string{
				"SYNC_ATTEMPTS": "0",
			},
			wantErr: true,
		},
	}

	for idx := range testCases {
		tc := testCases[idx]
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				require.Equal(t, tc.wantCfg, cfg)
			}
		})
	}
}
