package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EventConfig is the presentation data rendered into participant emails.
type EventConfig struct {
	Name          string       `mapstructure:"name"`
	Date          string       `mapstructure:"date"`
	Venue         string       `mapstructure:"venue"`
	ReportingTime string       `mapstructure:"reportingTime"`
	Organizer     string       `mapstructure:"organizer"`
	SupportEmail  string       `mapstructure:"supportEmail"`
	SupportPhone  string       `mapstructure:"supportPhone"`
	Social        SocialConfig `mapstructure:"social"`
	FooterMessage string       `mapstructure:"footerMessage"`
	CopyrightYear int          `mapstructure:"copyrightYear"`
}

type SocialConfig struct {
	Instagram string `mapstructure:"instagram"`
	Facebook  string `mapstructure:"facebook"`
}

func DefaultEventConfig() EventConfig {
	return EventConfig{
		Name:          "Ravulapalem Run 2025",
		Date:          "Feb 08, 2025",
		Venue:         "Ravulapalem",
		ReportingTime: "5:00 AM",
		Organizer:     "KG Runners Ravulapalem",
		SupportEmail:  "kgrunnersravulapalem@gmail.com",
		Social: SocialConfig{
			Instagram: "https://instagram.com/kgrunnersravulapalem",
			Facebook:  "https://facebook.com/kgrunnersravulapalem",
		},
		FooterMessage: "Follow us on Instagram and Facebook for the latest updates!",
		CopyrightYear: 2025,
	}
}

type EventConfigHolder struct {
	current atomic.Value // holds EventConfig
}

// NewStaticEventConfigHolder returns a holder that never reloads.
func NewStaticEventConfigHolder(cfg EventConfig) *EventConfigHolder {
	holder := &EventConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEventConfigHolder() (*EventConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("event")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/racepay")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RACEPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEventConfig()
	v.SetDefault("event.name", defaults.Name)
	v.SetDefault("event.date", defaults.Date)
	v.SetDefault("event.venue", defaults.Venue)
	v.SetDefault("event.reportingTime", defaults.ReportingTime)
	v.SetDefault("event.organizer", defaults.Organizer)
	v.SetDefault("event.supportEmail", defaults.SupportEmail)
	v.SetDefault("event.supportPhone", defaults.SupportPhone)
	v.SetDefault("event.social.instagram", defaults.Social.Instagram)
	v.SetDefault("event.social.facebook", defaults.Social.Facebook)
	v.SetDefault("event.footerMessage", defaults.FooterMessage)
	v.SetDefault("event.copyrightYear", defaults.CopyrightYear)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var cfg EventConfig
	if err := v.UnmarshalKey("event", &cfg); err != nil {
		return nil, err
	}
	if err := validateEventConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEventConfigHolder(cfg)
	if !fileFound {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EventConfig
		if err := v.UnmarshalKey("event", &updated); err != nil {
			log.Printf("[event-config] reload failed: %v", err)
			return
		}
		if err := validateEventConfig(updated); err != nil {
			log.Printf("[event-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[event-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *EventConfigHolder) Get() EventConfig {
	return h.current.Load().(EventConfig)
}

func validateEventConfig(cfg EventConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return errors.New("event.name cannot be empty")
	}
	if strings.TrimSpace(cfg.SupportEmail) == "" {
		return errors.New("event.supportEmail cannot be empty")
	}
	return nil
}
