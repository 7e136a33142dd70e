// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// maxRedirects は短縮URL解決時にたどるリダイレクトの上限。
const maxRedirects = 5

// ErrHostNotAllowed は解決対象として許可されていないホストを示す。
var ErrHostNotAllowed = errors.New("host is not allowed")

// OutboundGuard は利用者が入力したURLへ外向きリクエストを送る際の防御を定義する。
// 地図の短縮URL解決で使用される。
type OutboundGuard interface {
	// Client はSSRF防止機能付きのHTTPクライアントを返す。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
	// DNS解決後にDialerレベルで拒否される。リダイレクトも同じ検証を通る。
	Client() *http.Client

	// CheckURL はURLを送信前に静的に検証する。
	// 許可ホストが設定されている場合、ホストがそのいずれか（またはサブドメイン）である必要がある。
	CheckURL(rawURL string) error
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はDNS解決前の静的検証でブロックするネットワーク範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"0.0.0.0/8",
	"100.64.0.0/10",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR %s: %v", cidr, err))
		}
		nets = append(nets, network)
	}
	return nets
}

// ssrfGuard はOutboundGuardの実装。
type ssrfGuard struct {
	allowedHosts []string
	client       *http.Client
}

// NewSSRFGuard はOutboundGuardを生成する。
// allowedHostsが空の場合、ホストの許可リスト検証は行わない。
func NewSSRFGuard(timeout time.Duration, allowedHosts ...string) *ssrfGuard {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	client := safeurl.Client(config).Client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return checkTarget(req.URL)
	}

	hosts := make([]string, 0, len(allowedHosts))
	for _, h := range allowedHosts {
		hosts = append(hosts, strings.ToLower(strings.TrimSpace(h)))
	}
	return &ssrfGuard{allowedHosts: hosts, client: client}
}

// Client はSSRF防止機能付きのHTTPクライアントを返す。
func (g *ssrfGuard) Client() *http.Client {
	return g.client
}

// CheckURL はURLを送信前に静的に検証する。
func (g *ssrfGuard) CheckURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("empty URL")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if err := checkTarget(parsed); err != nil {
		return err
	}
	if len(g.allowedHosts) > 0 && !hostAllowed(parsed.Hostname(), g.allowedHosts) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, parsed.Hostname())
	}
	return nil
}

// checkTarget はスキーム、ホスト、IPアドレス範囲を検証する。
func checkTarget(u *url.URL) error {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return errors.New("empty host")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip)
			}
		}
	}
	return nil
}

// hostAllowed はホストが許可ホストそのものかサブドメインかを判定する。
func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

var _ OutboundGuard = (*ssrfGuard)(nil)
