package services

import (
	"fmt"
	"time"

	"github.com/robotlab/labhub/config"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
)

// Settings are the scheduling knobs shared by the engines.
type Settings struct {
	Location       *time.Location
	WindowStart    string // HH:MM:SS, inclusive
	WindowEnd      string // HH:MM:SS, inclusive
	ResponseWindow time.Duration
	DefaultGrades  []string
	DefaultPenalty int
}

// SettingsFromConfig copies the scheduling keys out of cfg.
func SettingsFromConfig(cfg config.AppConfig) Settings {
	return Settings{
		Location:       cfg.Location(),
		WindowStart:    cfg.TriggerWindowStart,
		WindowEnd:      cfg.TriggerWindowEnd,
		ResponseWindow: cfg.ResponseWindow(),
		DefaultGrades:  cfg.DefaultTargetGrades,
		DefaultPenalty: cfg.DefaultPenaltyPoints,
	}
}

func (s Settings) loc() *time.Location {
	if s.Location == nil {
		return time.Local
	}
	return s.Location
}

// Today formats t as the calendar date in the configured zone.
func (s Settings) Today(t time.Time) string {
	return t.In(s.loc()).Format(dateLayout)
}

// Clock formats t as HH:MM:SS in the configured zone.
func (s Settings) Clock(t time.Time) string {
	return t.In(s.loc()).Format(clockLayout)
}

// Deadline is the moment check-ins for a trigger stop being accepted.
func (s Settings) Deadline(date, clock string) (time.Time, error) {
	at, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, s.loc())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trigger time %s %s: %w", date, clock, err)
	}
	return at.Add(s.ResponseWindow), nil
}

func secondsOfDay(clock string) (int, error) {
	t, err := time.Parse(clockLayout, clock)
	if err != nil {
		return 0, err
	}
	return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
}

func formatSeconds(sec int) string {
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, sec%3600/60, sec%60)
}
