package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Collection CollectionConfig `mapstructure:"collection"`
}

type DatabaseConfig struct {
	Driver          string            `mapstructure:"driver" validate:"oneof=mysql sqlite3"`
	Path            string            `mapstructure:"path"`
	Host            string            `mapstructure:"host"`
	Port            int               `mapstructure:"port" validate:"gte=0,lte=65535"`
	Database        string            `mapstructure:"database"`
	Username        string            `mapstructure:"username"`
	Password        string            `mapstructure:"password"`
	TLS             bool              `mapstructure:"tls"`
	Params          map[string]string `mapstructure:"params"`
	MaxOpenConns    int               `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int               `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime int               `mapstructure:"conn_max_lifetime_seconds" validate:"gte=0"`
	ConnectAttempts uint              `mapstructure:"connect_attempts" validate:"gte=1"`
}

type LeechAction string

const (
	LeechActionSuspend LeechAction = "suspend"
	LeechActionDelete  LeechAction = "delete"
)

type NewCardOrder string

const (
	NewCardOrderLinear NewCardOrder = "linear"
	NewCardOrderRandom NewCardOrder = "random"
)

// CollectionConfig holds the scheduling parameters of a card collection.
// It is treated as immutable once a review collection has been built from it.
type CollectionConfig struct {
	LearningSteps          []time.Duration `mapstructure:"learning_steps" validate:"required,min=1,ascending,dive,gt=0"`
	LapseSteps             []time.Duration `mapstructure:"lapse_steps" validate:"required,min=1,ascending,dive,gt=0"`
	GraduationInterval     int             `mapstructure:"graduation_interval" validate:"gte=1"`
	GraduationEasyInterval int             `mapstructure:"graduation_easy_interval" validate:"gte=1"`
	GraduationStartingEase float64         `mapstructure:"graduation_starting_ease" validate:"gtfield=MinEase"`
	LapseMinInterval       int             `mapstructure:"lapse_min_interval" validate:"gte=1"`
	LapseIntervalFactor    float64         `mapstructure:"lapse_interval_factor" validate:"gte=0,lte=1"`

	EaseHard  float64 `mapstructure:"ease_hard"`
	EaseGood  float64 `mapstructure:"ease_good"`
	EaseEasy  float64 `mapstructure:"ease_easy"`
	EaseLapse float64 `mapstructure:"ease_lapse" validate:"lte=0"`

	EasyBonus        float64 `mapstructure:"easy_bonus" validate:"gte=1"`
	MinEase          float64 `mapstructure:"min_ease" validate:"gt=0"`
	MaxInterval      int     `mapstructure:"max_interval" validate:"gte=1"`
	IntervalModifier float64 `mapstructure:"interval_modifier" validate:"gt=0"`

	LeechThreshold int         `mapstructure:"leech_threshold" validate:"gte=0"`
	LeechAction    LeechAction `mapstructure:"leech_action" validate:"oneof=suspend delete"`

	NewCardsPerDay int          `mapstructure:"new_cards_per_day" validate:"gte=0"`
	DueCardsPerDay int          `mapstructure:"due_cards_per_day" validate:"gte=0"`
	NewCardOrder   NewCardOrder `mapstructure:"new_card_order" validate:"oneof=linear random"`

	MaxEvalTime time.Duration `mapstructure:"max_eval_time" validate:"gt=0"`
}

// DefaultCollectionConfig returns the scheduling defaults.
func DefaultCollectionConfig() *CollectionConfig {
	return &CollectionConfig{
		LearningSteps:          []time.Duration{time.Minute, 10 * time.Minute},
		LapseSteps:             []time.Duration{10 * time.Minute},
		GraduationInterval:     1,
		GraduationEasyInterval: 4,
		GraduationStartingEase: 2.5,
		LapseMinInterval:       1,
		LapseIntervalFactor:    0.5,
		EaseHard:               -0.15,
		EaseGood:               0,
		EaseEasy:               0.15,
		EaseLapse:              -0.20,
		EasyBonus:              1.3,
		MinEase:                1.3,
		MaxInterval:            36500,
		IntervalModifier:       1.0,
		LeechThreshold:         8,
		LeechAction:            LeechActionSuspend,
		NewCardsPerDay:         20,
		DueCardsPerDay:         200,
		NewCardOrder:           NewCardOrderLinear,
		MaxEvalTime:            60 * time.Second,
	}
}

// Validate checks the collection parameters with the same rules the loader applies.
func (c *CollectionConfig) Validate() error {
	validate, trans, err := newValidator()
	if err != nil {
		return fmt.Errorf("failed to create new validator: %w", err)
	}
	return translateErrors(validate.Struct(c), trans)
}

type ConfigLoader struct {
	viper      *viper.Viper
	validator  *validator.Validate
	translator ut.Translator
}

func NewConfigLoader(configFile string) (*ConfigLoader, error) {
	validate, trans, err := newValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to create new validator: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/cardreview")
	}

	return &ConfigLoader{
		viper:      v,
		validator:  validate,
		translator: trans,
	}, nil
}

func (loader *ConfigLoader) Load() (*Config, error) {
	v := loader.viper

	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.path", "cardreview.db")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.database", "cardreview")
	v.SetDefault("database.username", "user")
	v.SetDefault("database.connect_attempts", 3)

	defaults := DefaultCollectionConfig()
	v.SetDefault("collection.learning_steps", defaults.LearningSteps)
	v.SetDefault("collection.lapse_steps", defaults.LapseSteps)
	v.SetDefault("collection.graduation_interval", defaults.GraduationInterval)
	v.SetDefault("collection.graduation_easy_interval", defaults.GraduationEasyInterval)
	v.SetDefault("collection.graduation_starting_ease", defaults.GraduationStartingEase)
	v.SetDefault("collection.lapse_min_interval", defaults.LapseMinInterval)
	v.SetDefault("collection.lapse_interval_factor", defaults.LapseIntervalFactor)
	v.SetDefault("collection.ease_hard", defaults.EaseHard)
	v.SetDefault("collection.ease_good", defaults.EaseGood)
	v.SetDefault("collection.ease_easy", defaults.EaseEasy)
	v.SetDefault("collection.ease_lapse", defaults.EaseLapse)
	v.SetDefault("collection.easy_bonus", defaults.EasyBonus)
	v.SetDefault("collection.min_ease", defaults.MinEase)
	v.SetDefault("collection.max_interval", defaults.MaxInterval)
	v.SetDefault("collection.interval_modifier", defaults.IntervalModifier)
	v.SetDefault("collection.leech_threshold", defaults.LeechThreshold)
	v.SetDefault("collection.leech_action", string(defaults.LeechAction))
	v.SetDefault("collection.new_cards_per_day", defaults.NewCardsPerDay)
	v.SetDefault("collection.due_cards_per_day", defaults.DueCardsPerDay)
	v.SetDefault("collection.new_card_order", string(defaults.NewCardOrder))
	v.SetDefault("collection.max_eval_time", defaults.MaxEvalTime)

	// Credentials come from the environment only
	if err := v.BindEnv("database.password", "DB_PASSWORD"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PASSWORD environment variable: %w", err)
	}
	if err := v.BindEnv("database.path", "DB_PATH"); err != nil {
		return nil, fmt.Errorf("failed to bind DB_PATH environment variable: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("configuration file found but could not be read: %w. Please check the file format and permissions", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration format: %w", err)
	}

	if err := translateErrors(loader.validator.Struct(cfg), loader.translator); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func translateErrors(err error, trans ut.Translator) error {
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	var errorMsgs []string
	for _, e := range validationErrors {
		errorMsgs = append(errorMsgs, e.Translate(trans))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(errorMsgs, ", "))
}
