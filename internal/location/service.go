package location

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/repository"
)

// Preference はユーザーの位置情報設定を表す。
// 未設定の場合はDefaultの座標とIsDefault=trueを返す。
type Preference struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	City      string  `json:"city,omitempty"`
	IsDefault bool    `json:"is_default"`
}

// Coordinates は設定の座標を返す。
func (p Preference) Coordinates() Coordinates {
	return Coordinates{Lat: p.Lat, Lon: p.Lon}
}

// SaveInput は位置情報の保存要求を表す。
// Lat/Lonが両方指定されていればそれを、そうでなければMapsURLを解析する。
type SaveInput struct {
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	MapsURL string   `json:"maps_url"`
}

// URLResolver は地図URLから座標を求める。
type URLResolver interface {
	Resolve(ctx context.Context, input string) (Coordinates, error)
}

// Service は位置情報設定のサービス層。
type Service struct {
	settings repository.SettingsRepository
	resolver URLResolver
	logger   *slog.Logger
}

// NewService はServiceを生成する。
func NewService(settings repository.SettingsRepository, resolver URLResolver, logger *slog.Logger) *Service {
	return &Service{settings: settings, resolver: resolver, logger: logger}
}

// Get はユーザーの位置情報設定を返す。
func (s *Service) Get(ctx context.Context, userID string) (*Preference, error) {
	c, ok, err := s.stored(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &Preference{Lat: Default.Lat, Lon: Default.Lon, City: DefaultCity, IsDefault: true}, nil
	}
	return &Preference{Lat: c.Lat, Lon: c.Lon}, nil
}

// CoordinatesFor は天気取得に使う座標を返す。未設定の場合はDefault。
func (s *Service) CoordinatesFor(ctx context.Context, userID string) (Coordinates, error) {
	c, ok, err := s.stored(ctx, userID)
	if err != nil {
		return Coordinates{}, err
	}
	if !ok {
		return Default, nil
	}
	return c, nil
}

// Save は位置情報を保存し、保存した設定を返す。
func (s *Service) Save(ctx context.Context, userID string, in SaveInput) (*Preference, error) {
	var c Coordinates
	switch {
	case in.Lat != nil && in.Lon != nil:
		c = Coordinates{Lat: *in.Lat, Lon: *in.Lon}
		if !c.Valid() {
			return nil, model.NewInvalidLocationError("緯度は-90〜90、経度は-180〜180の範囲で指定してください")
		}
	case in.MapsURL != "":
		resolved, err := s.resolver.Resolve(ctx, in.MapsURL)
		if err != nil {
			return nil, err
		}
		c = resolved
	default:
		return nil, model.NewInvalidLocationError("緯度・経度または地図URLを指定してください")
	}

	raw, err := c.Encode()
	if err != nil {
		return nil, fmt.Errorf("位置情報のエンコードに失敗しました: %w", err)
	}
	if err := s.settings.SaveLocation(ctx, userID, raw); err != nil {
		return nil, fmt.Errorf("位置情報の保存に失敗しました: %w", err)
	}

	s.logger.Info("位置情報を保存しました",
		slog.String("user_id", userID),
		slog.Float64("lat", round4(c.Lat)),
		slog.Float64("lon", round4(c.Lon)),
	)
	return &Preference{Lat: c.Lat, Lon: c.Lon}, nil
}

// Clear は位置情報を削除する。
func (s *Service) Clear(ctx context.Context, userID string) error {
	if err := s.settings.SaveLocation(ctx, userID, nil); err != nil {
		return fmt.Errorf("位置情報の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *Service) stored(ctx context.Context, userID string) (Coordinates, bool, error) {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return Coordinates{}, false, fmt.Errorf("ユーザー設定の取得に失敗しました: %w", err)
	}
	if settings == nil {
		return Coordinates{}, false, nil
	}
	c, ok := Decode(settings.Location)
	return c, ok, nil
}

func round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}
