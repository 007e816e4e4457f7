package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite3",
		Path:            "cardreview.db",
		Host:            "localhost",
		Port:            3306,
		Database:        "cardreview",
		Username:        "user",
		ConnectAttempts: 3,
	}
}

func TestConfigLoader_Load(t *testing.T) {
	tests := []struct {
		name              string
		configContent     string
		useExplicitPath   bool
		want              func() *Config
		wantErrorContains []string
	}{
		{
			name: "custom collection values",
			configContent: `collection:
  learning_steps: [30s, 5m, 1h]
  lapse_steps: [5m]
  new_cards_per_day: 5
  due_cards_per_day: 50
  leech_action: delete
  new_card_order: random
  max_eval_time: 30s
`,
			useExplicitPath: true,
			want: func() *Config {
				collection := DefaultCollectionConfig()
				collection.LearningSteps = []time.Duration{30 * time.Second, 5 * time.Minute, time.Hour}
				collection.LapseSteps = []time.Duration{5 * time.Minute}
				collection.NewCardsPerDay = 5
				collection.DueCardsPerDay = 50
				collection.LeechAction = LeechActionDelete
				collection.NewCardOrder = NewCardOrderRandom
				collection.MaxEvalTime = 30 * time.Second
				return &Config{Database: defaultDatabaseConfig(), Collection: *collection}
			},
		},
		{
			name: "mysql database section",
			configContent: `database:
  driver: mysql
  host: db.example.com
  port: 3307
  database: reviews
  username: admin
  max_open_conns: 10
`,
			want: func() *Config {
				db := defaultDatabaseConfig()
				db.Driver = "mysql"
				db.Host = "db.example.com"
				db.Port = 3307
				db.Database = "reviews"
				db.Username = "admin"
				db.MaxOpenConns = 10
				return &Config{Database: db, Collection: *DefaultCollectionConfig()}
			},
		},
		{
			name: "unknown keys use defaults",
			configContent: `wrong_key:
  some_value: test
`,
			want: func() *Config {
				return &Config{Database: defaultDatabaseConfig(), Collection: *DefaultCollectionConfig()}
			},
		},
		{
			name: "no config file uses defaults",
			want: func() *Config {
				return &Config{Database: defaultDatabaseConfig(), Collection: *DefaultCollectionConfig()}
			},
		},
		{
			name: "invalid YAML format",
			configContent: `collection:
  learning_steps: [1m
  invalid yaml format here [[[
`,
			wantErrorContains: []string{
				"configuration file found but could not be read",
				"Please check the file format and permissions",
			},
		},
		{
			name: "steps out of order",
			configContent: `collection:
  learning_steps: [10m, 1m]
`,
			wantErrorContains: []string{
				"invalid configuration",
				"learning_steps must be in strictly ascending order",
			},
		},
		{
			name: "unknown leech action",
			configContent: `collection:
  leech_action: ignore
`,
			wantErrorContains: []string{
				"invalid configuration",
				"leech_action",
			},
		},
		{
			name: "unknown driver",
			configContent: `database:
  driver: oracle
`,
			wantErrorContains: []string{
				"invalid configuration",
				"driver",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := t.TempDir()

			var configPath string
			if tt.useExplicitPath {
				configPath = filepath.Join(tempDir, "custom.yml")
				require.NoError(t, os.WriteFile(configPath, []byte(tt.configContent), 0644))
			} else {
				if tt.configContent != "" {
					require.NoError(t, os.WriteFile(filepath.Join(tempDir, "config.yaml"), []byte(tt.configContent), 0644))
				}
				t.Chdir(tempDir)
			}

			loader, err := NewConfigLoader(configPath)
			require.NoError(t, err)
			got, err := loader.Load()
			if len(tt.wantErrorContains) > 0 {
				require.Error(t, err)
				for _, want := range tt.wantErrorContains {
					assert.Contains(t, err.Error(), want)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want(), got)
		})
	}
}

func TestCollectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *CollectionConfig)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			modify: func(c *CollectionConfig) {},
		},
		{
			name:    "empty learning steps",
			modify:  func(c *CollectionConfig) { c.LearningSteps = nil },
			wantErr: "learning_steps",
		},
		{
			name:    "non positive step",
			modify:  func(c *CollectionConfig) { c.LapseSteps = []time.Duration{0} },
			wantErr: "lapse_steps",
		},
		{
			name:    "positive lapse malus",
			modify:  func(c *CollectionConfig) { c.EaseLapse = 0.1 },
			wantErr: "ease_lapse",
		},
		{
			name:    "starting ease below minimum",
			modify:  func(c *CollectionConfig) { c.GraduationStartingEase = 1.0 },
			wantErr: "graduation_starting_ease",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCollectionConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
