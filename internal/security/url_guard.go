// Package security は外部通信とプロバイダー由来テキストの安全化を提供する。
package security

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// ErrBlockedURL はプロバイダー応答中のURLが辿れない宛先を指している場合に返る。
var ErrBlockedURL = errors.New("blocked url")

// URLGuard はプロバイダー応答から得たURL（配信時刻表、ロゴページなど）を辿る前の検査口。
type URLGuard interface {
	NewSafeClient(timeout time.Duration) *http.Client
	ValidateURL(rawURL string) error
}

// privatePrefixes は内部ネットワークとして扱うアドレス範囲。
// 169.254.0.0/16 にはクラウドのメタデータエンドポイントが含まれる。
var privatePrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// Guard はsafeurlによる接続時検査と、文字列段階の静的検査をまとめたURLGuard実装。
type Guard struct {
	ports []int
}

var _ URLGuard = (*Guard)(nil)

// NewURLGuard は80/443番ポートのみを許可するGuardを返す。
func NewURLGuard() *Guard {
	return &Guard{ports: []int{80, 443}}
}

// NewSafeClient は名前解決後の接続先IPを検査するHTTPクライアントを返す。
// DNSリバインディングで内部アドレスに向けられた場合もここで止まる。
func (g *Guard) NewSafeClient(timeout time.Duration) *http.Client {
	cfg := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(g.ports...).
		Build()
	return safeurl.Client(cfg).Client
}

// ValidateURL は名前解決を伴わずに検査する。
// ホスト名の場合はlocalhost系のみ拒否し、残りはNewSafeClientの接続時検査に任せる。
func (g *Guard) ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBlockedURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("%w: scheme %q", ErrBlockedURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: no host in %q", ErrBlockedURL, rawURL)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("%w: host %s", ErrBlockedURL, host)
	}

	if addr, err := netip.ParseAddr(host); err == nil && isPrivateAddr(addr) {
		return fmt.Errorf("%w: address %s", ErrBlockedURL, addr)
	}
	return nil
}

func isPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range privatePrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
