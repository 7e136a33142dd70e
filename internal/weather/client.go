// Package weather はOpenWeatherMapから現在の天気と予報を取得し、降水見込みを算出する。
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hitoshi/nimbo/internal/metrics"
)

const (
	// defaultEndpoint はOpenWeatherMap APIのベースURL。
	defaultEndpoint = "https://api.openweathermap.org/data/2.5"
	// maxResponseSize はレスポンスボディの読み込み上限。
	maxResponseSize = 1 << 20
)

// ErrNotConfigured はAPIキーが設定されていないことを示す。
var ErrNotConfigured = errors.New("weather API key is not configured")

// Coordinates は問い合わせる地点の緯度・経度。
type Coordinates struct {
	Lat float64
	Lon float64
}

// Client はOpenWeatherMap APIのクライアント。
type Client struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。
func NewClient(httpClient *http.Client, apiKey string, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		logger:     logger,
		metrics:    collector,
	}
}

// Configured はAPIキーが設定されているかを返す。
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type apiMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  int     `json:"pressure"`
	Humidity  int     `json:"humidity"`
}

type apiCondition struct {
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type apiWind struct {
	Speed float64 `json:"speed"`
}

type currentResponse struct {
	Name     string         `json:"name"`
	Dt       int64          `json:"dt"`
	Timezone int            `json:"timezone"`
	Main     apiMain        `json:"main"`
	Weather  []apiCondition `json:"weather"`
	Wind     apiWind        `json:"wind"`
}

type forecastItem struct {
	Dt      int64          `json:"dt"`
	Main    apiMain        `json:"main"`
	Weather []apiCondition `json:"weather"`
	Wind    apiWind        `json:"wind"`
	Pop     float64        `json:"pop"`
}

type forecastResponse struct {
	List []forecastItem `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

// Current は現在の天気を取得する。
func (c *Client) Current(ctx context.Context, at Coordinates) (*Current, error) {
	var resp currentResponse
	if err := c.get(ctx, "weather", at, &resp); err != nil {
		return nil, err
	}

	cur := &Current{
		City:      resp.Name,
		Time:      time.Unix(resp.Dt, 0).UTC(),
		Temp:      resp.Main.Temp,
		FeelsLike: resp.Main.FeelsLike,
		TempMin:   resp.Main.TempMin,
		TempMax:   resp.Main.TempMax,
		Humidity:  resp.Main.Humidity,
		Pressure:  resp.Main.Pressure,
		WindSpeed: resp.Wind.Speed,
	}
	if len(resp.Weather) > 0 {
		cur.Description = resp.Weather[0].Description
		cur.Icon = resp.Weather[0].Icon
	}
	return cur, nil
}

// Forecast は3時間刻みの予報を取得する。
// tzOffsetはAPIが返す地点のUTCオフセット（秒）。
func (c *Client) Forecast(ctx context.Context, at Coordinates) (entries []ForecastEntry, city string, tzOffset int, err error) {
	var resp forecastResponse
	if err := c.get(ctx, "forecast", at, &resp); err != nil {
		return nil, "", 0, err
	}

	entries = make([]ForecastEntry, 0, len(resp.List))
	for _, item := range resp.List {
		e := ForecastEntry{
			Time:      time.Unix(item.Dt, 0).UTC(),
			Temp:      item.Main.Temp,
			TempMin:   item.Main.TempMin,
			TempMax:   item.Main.TempMax,
			Humidity:  item.Main.Humidity,
			WindSpeed: item.Wind.Speed,
			Pop:       item.Pop,
		}
		if len(item.Weather) > 0 {
			e.Description = item.Weather[0].Description
			e.Icon = item.Weather[0].Icon
		}
		entries = append(entries, e)
	}
	return entries, resp.City.Name, resp.City.Timezone, nil
}

// get はAPIを呼び出し、JSONレスポンスをoutにデコードする。
func (c *Client) get(ctx context.Context, path string, at Coordinates, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	reqURL, err := url.Parse(c.endpoint + "/" + path)
	if err != nil {
		return fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}
	q := reqURL.Query()
	q.Set("lat", strconv.FormatFloat(at.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(at.Lon, 'f', -1, 64))
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	q.Set("lang", "es")
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordWeatherRequest(path, "error", time.Since(start))
		c.logger.Error("天気APIの呼び出しに失敗しました",
			slog.String("endpoint", path),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("天気APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		c.metrics.RecordWeatherRequest(path, "error", time.Since(start))
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordWeatherRequest(path, "http_"+strconv.Itoa(resp.StatusCode), time.Since(start))
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &apiErr)
		c.logger.Error("天気APIがエラーステータスを返しました",
			slog.String("endpoint", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("message", apiErr.Message),
		)
		return fmt.Errorf("天気APIがステータス %d を返しました", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		c.metrics.RecordWeatherRequest(path, "decode_error", time.Since(start))
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	c.metrics.RecordWeatherRequest(path, "success", time.Since(start))
	return nil
}
