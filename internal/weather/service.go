package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/nimbo/internal/location"
	"github.com/hitoshi/nimbo/internal/model"
)

// API は天気APIの取得操作を抽象化する。
type API interface {
	Current(ctx context.Context, at Coordinates) (*Current, error)
	Forecast(ctx context.Context, at Coordinates) ([]ForecastEntry, string, int, error)
}

// CoordinateSource はユーザーの位置情報設定を提供する。
type CoordinateSource interface {
	CoordinatesFor(ctx context.Context, userID string) (location.Coordinates, error)
}

// Service は天気情報のサービス層。
// 外部APIの失敗はログに記録し、利用者にはWEATHER_UNAVAILABLEとして返す。
type Service struct {
	api       API
	locations CoordinateSource
	logger    *slog.Logger
}

// NewService はServiceを生成する。
func NewService(api API, locations CoordinateSource, logger *slog.Logger) *Service {
	return &Service{api: api, locations: locations, logger: logger}
}

// Current はユーザーの設定地点の現在の天気を返す。
func (s *Service) Current(ctx context.Context, userID string) (*Current, error) {
	at, err := s.coordinates(ctx, userID)
	if err != nil {
		return nil, err
	}
	cur, err := s.api.Current(ctx, at)
	if err != nil {
		return nil, s.unavailable(userID, err)
	}
	return cur, nil
}

// Forecast はユーザーの設定地点の日別予報（最大5日）と降水見込みを返す。
func (s *Service) Forecast(ctx context.Context, userID string) (*Forecast, error) {
	at, err := s.coordinates(ctx, userID)
	if err != nil {
		return nil, err
	}
	entries, city, tzOffset, err := s.api.Forecast(ctx, at)
	if err != nil {
		return nil, s.unavailable(userID, err)
	}

	days := Downsample(entries)
	loc := time.FixedZone("local", tzOffset)
	return &Forecast{
		City:       city,
		Days:       days,
		Projection: Project(days, loc),
		RainAlert:  RainAlert(days),
	}, nil
}

func (s *Service) coordinates(ctx context.Context, userID string) (Coordinates, error) {
	c, err := s.locations.CoordinatesFor(ctx, userID)
	if err != nil {
		return Coordinates{}, err
	}
	return Coordinates{Lat: c.Lat, Lon: c.Lon}, nil
}

func (s *Service) unavailable(userID string, err error) error {
	if errors.Is(err, ErrNotConfigured) {
		s.logger.Warn("天気APIキーが設定されていません")
	} else {
		s.logger.Error("天気情報の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return model.NewWeatherUnavailableError()
}
