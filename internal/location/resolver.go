package location

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"github.com/hitoshi/nimbo/internal/model"
	"github.com/hitoshi/nimbo/internal/security"
)

// maxPageSize は短縮URL解決時に読み込むHTMLの上限。
const maxPageSize = 1 << 20

// ShortLinkHosts は座標を含まない共有URLとして解決を試みるホスト。
var ShortLinkHosts = []string{"maps.app.goo.gl", "goo.gl", "g.co"}

// Resolver は地図URLから座標を求める。
// URL自体に座標が無い短縮URLは、SSRF対策済みのクライアントでリダイレクト先と
// HTMLのcanonical / og:url を調べて解決する。
type Resolver struct {
	guard  security.OutboundGuard
	logger *slog.Logger
}

// NewResolver はResolverを生成する。guardのクライアントは許可ホストをShortLinkHostsに限定すること。
func NewResolver(guard security.OutboundGuard, logger *slog.Logger) *Resolver {
	return &Resolver{guard: guard, logger: logger}
}

// Resolve は入力文字列から座標を求める。
func (r *Resolver) Resolve(ctx context.Context, input string) (Coordinates, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Coordinates{}, model.NewInvalidLocationError("URLが入力されていません")
	}
	if c, ok := ParseMapsURL(input); ok {
		return c, nil
	}

	u, err := url.Parse(input)
	if err != nil || u.Host == "" || !isShortLinkHost(u.Hostname()) {
		return Coordinates{}, model.NewInvalidLocationError("座標が見つかりません")
	}
	if r.guard == nil {
		return Coordinates{}, model.NewInvalidLocationError("短縮URLは解決できません")
	}
	if err := r.guard.CheckURL(input); err != nil {
		return Coordinates{}, model.NewSSRFBlockedError()
	}

	return r.follow(ctx, input)
}

// follow は短縮URLを取得し、最終URLまたはHTML内のURLから座標を抽出する。
func (r *Resolver) follow(ctx context.Context, shortURL string) (Coordinates, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shortURL, nil)
	if err != nil {
		return Coordinates{}, model.NewInvalidLocationError(err.Error())
	}
	req.Header.Set("User-Agent", "Nimbo/1.0 location resolver")
	req.Header.Set("Accept", "text/html, */*")

	resp, err := r.guard.Client().Do(req)
	if err != nil {
		r.logger.Warn("短縮URLの解決に失敗しました",
			slog.String("url", shortURL),
			slog.String("error", err.Error()),
		)
		return Coordinates{}, model.NewInvalidLocationError("リンクを開けませんでした")
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		if c, ok := ParseMapsURL(resp.Request.URL.String()); ok {
			return c, nil
		}
	}
	if resp.StatusCode != http.StatusOK {
		return Coordinates{}, model.NewInvalidLocationError(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return Coordinates{}, model.NewInvalidLocationError("レスポンスの読み取りに失敗しました")
	}
	for _, link := range ExtractPageURLs(body) {
		if c, ok := ParseMapsURL(link); ok {
			return c, nil
		}
	}
	return Coordinates{}, model.NewInvalidLocationError("座標が見つかりません")
}

// ExtractPageURLs はHTMLのheadから <link rel="canonical"> と <meta property="og:url"> の値を抽出する。
func ExtractPageURLs(body []byte) []string {
	var urls []string
	tokenizer := html.NewTokenizer(bytes.NewReader(body))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return urls

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			tagName := string(tn)
			if tagName == "body" {
				return urls
			}
			if !hasAttr || (tagName != "link" && tagName != "meta") {
				continue
			}

			attrs := make(map[string]string)
			for {
				key, val, more := tokenizer.TagAttr()
				attrs[strings.ToLower(string(key))] = string(val)
				if !more {
					break
				}
			}

			switch {
			case tagName == "link" && strings.EqualFold(attrs["rel"], "canonical") && attrs["href"] != "":
				urls = append(urls, attrs["href"])
			case tagName == "meta" && strings.EqualFold(attrs["property"], "og:url") && attrs["content"] != "":
				urls = append(urls, attrs["content"])
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "head" {
				return urls
			}
		}
	}
}

func isShortLinkHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range ShortLinkHosts {
		if host == h {
			return true
		}
	}
	return false
}
