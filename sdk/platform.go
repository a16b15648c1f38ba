package sdk

import (
	"context"
	"errors"

	"github.com/Swrve/swrve-smarttv-sdk/internal/config"
	"github.com/Swrve/swrve-smarttv-sdk/internal/geo"
	"github.com/Swrve/swrve-smarttv-sdk/internal/storage"
	"go.uber.org/zap"
)

// ErrLinkNotSupported is returned by platforms that cannot open URLs.
var ErrLinkNotSupported = errors.New("platform cannot open links")

// DeviceInfo describes the host device.
type DeviceInfo struct {
	ID          string
	Name        string
	Model       string
	OS          string
	OSVersion   string
	Language    string
	CountryCode string
	Region      string
	Timezone    string
	AppStore    string
	PublicIP    string
	Width       int
	Height      int
	DPI         int
}

// Platform is the host TV platform.
type Platform interface {
	Device() DeviceInfo
	OpenLink(url string) error
}

// StaticPlatform reports a fixed device. Links go to OpenFunc when set.
type StaticPlatform struct {
	Info     DeviceInfo
	OpenFunc func(url string) error
}

// NewStaticPlatform describes the device from configuration.
func NewStaticPlatform(cfg config.DeviceConfig) *StaticPlatform {
	return &StaticPlatform{Info: DeviceInfo{
		ID:          cfg.ID,
		Name:        cfg.Name,
		Model:       cfg.Model,
		OS:          cfg.OS,
		OSVersion:   cfg.OSVersion,
		Language:    cfg.Language,
		CountryCode: cfg.CountryCode,
		Region:      cfg.Region,
		Timezone:    cfg.Timezone,
		AppStore:    cfg.AppStore,
		PublicIP:    cfg.PublicIP,
		Width:       cfg.Width,
		Height:      cfg.Height,
		DPI:         cfg.DPI,
	}}
}

func (p *StaticPlatform) Device() DeviceInfo { return p.Info }

func (p *StaticPlatform) OpenLink(url string) error {
	if p.OpenFunc == nil {
		return ErrLinkNotSupported
	}
	return p.OpenFunc(url)
}

// resolveDevice completes the platform's device description. A missing id
// is generated once and kept in storage; a missing location comes from the
// geo resolver when the public address is known.
func (s *SDK) resolveDevice(ctx context.Context, newID func() string, resolver *geo.Resolver) DeviceInfo {
	d := s.platform.Device()

	if d.ID == "" {
		id, ok := s.store.Lookup(ctx, storage.KeyDeviceID)
		if !ok || id == "" {
			id = newID()
			if err := s.store.Set(ctx, storage.KeyDeviceID, id); err != nil {
				s.logger.Warn("failed to store device id", zap.Error(err))
			}
		}
		d.ID = id
	}
	if d.Language == "" {
		d.Language = s.cfg.Language
	}

	if (d.CountryCode == "" || d.Region == "" || d.Timezone == "") && d.PublicIP != "" {
		if info := resolver.Resolve(d.PublicIP); info != nil {
			if d.CountryCode == "" {
				d.CountryCode = info.CountryCode
			}
			if d.Region == "" {
				d.Region = info.Region
			}
			if d.Timezone == "" {
				d.Timezone = info.Timezone
			}
			s.logger.Debug("device location resolved",
				zap.String("country_code", d.CountryCode),
				zap.String("region", d.Region),
			)
		}
	}
	return d
}
