// Package unfurl reads the title, description, preview image and site name a
// page advertises through OpenGraph tags, falling back to <title> and the
// description meta tag.
//
// Fetches only ever reach public addresses: the dialer refuses loopback,
// private, link-local and other non-routable IPs after DNS resolution, so
// redirects and DNS names pointing inward are refused as well.
package unfurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/html"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultMaxBytes = 2 << 20 // 2 MiB of HTML is plenty for <head>
	userAgent       = "DevXBoardBot/1.0 (+https://devxboard.app)"
	maxRedirects    = 5
)

// ErrBlockedAddress is returned when a URL resolves to an address the server
// must not connect to.
var ErrBlockedAddress = errors.New("unfurl: destination address is not allowed")

// sharedAddressSpace is 100.64.0.0/10 (carrier-grade NAT), which netip does
// not count as private.
var sharedAddressSpace = netip.MustParsePrefix("100.64.0.0/10")

// Metadata is what a page says about itself.
type Metadata struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
	SiteName    string `json:"site_name"`
}

// Client fetches pages and extracts their metadata.
type Client struct {
	http     *http.Client
	maxBytes int64
}

// New returns a Client with the given timeout. Zero means DefaultTimeout.
func New(timeout time.Duration) *Client {
	return newClient(timeout, refusePrivate)
}

// newClient builds the client around a dialer whose Control hook sees every
// resolved address before the connection is made. A nil control allows any
// address.
func newClient(timeout time.Duration, control func(network, address string, c syscall.RawConn) error) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{
		Timeout:   5 * time.Second,
		KeepAlive: 30 * time.Second,
		Control:   control,
	}
	transport := &http.Transport{
		// No proxy: a proxy would make the dial-time check meaningless.
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       30 * time.Second,
	}
	return &Client{
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("unfurl: stopped after %d redirects", maxRedirects)
				}
				if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
					return fmt.Errorf("unfurl: redirect to %q is not http(s)", req.URL.Scheme)
				}
				return nil
			},
		},
		maxBytes: DefaultMaxBytes,
	}
}

// refusePrivate is a net.Dialer Control hook. address is always an IP:port
// here; name resolution has already happened.
func refusePrivate(_, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("unfurl: bad dial address %q: %w", address, err)
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return fmt.Errorf("unfurl: bad dial address %q: %w", address, err)
	}
	if !publicAddr(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}

func publicAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	switch {
	case !addr.IsValid(),
		addr.IsUnspecified(),
		addr.IsLoopback(),
		addr.IsPrivate(),
		addr.IsLinkLocalUnicast(),
		addr.IsLinkLocalMulticast(),
		addr.IsInterfaceLocalMulticast(),
		addr.IsMulticast(),
		sharedAddressSpace.Contains(addr):
		return false
	}
	return addr.IsGlobalUnicast()
}

// Fetch downloads rawURL and extracts its metadata. Only http(s) URLs are
// fetched and only the first maxBytes of the body are read.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Metadata, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("unfurl: %q is not an http(s) URL", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("unfurl: building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unfurl: fetching %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unfurl: %s returned status %d", u.Host, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unfurl: %s is %s, not HTML", u.Host, ct)
	}

	md, err := Parse(io.LimitReader(resp.Body, c.maxBytes), resp.Request.URL)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// Parse extracts metadata from an HTML document. base resolves relative
// image and canonical URLs; it may be nil.
func Parse(r io.Reader, base *url.URL) (*Metadata, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("unfurl: parsing HTML: %w", err)
	}

	md := &Metadata{}
	var pageTitle, metaDescription string

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "meta":
				content := strings.TrimSpace(attr(n, "content"))
				switch attr(n, "property") {
				case "og:title":
					setOnce(&md.Title, content)
				case "og:description":
					setOnce(&md.Description, content)
				case "og:image", "og:image:url":
					setOnce(&md.Image, content)
				case "og:site_name":
					setOnce(&md.SiteName, content)
				case "og:url":
					setOnce(&md.URL, content)
				}
				switch strings.ToLower(attr(n, "name")) {
				case "description":
					setOnce(&metaDescription, content)
				case "twitter:image":
					setOnce(&md.Image, content)
				}
			case "title":
				if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
					setOnce(&pageTitle, strings.TrimSpace(n.FirstChild.Data))
				}
			case "body":
				// Everything we read lives in <head>.
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	setOnce(&md.Title, pageTitle)
	setOnce(&md.Description, metaDescription)

	md.Image = resolve(base, md.Image)
	md.URL = resolve(base, md.URL)
	if md.URL == "" && base != nil {
		md.URL = base.String()
	}
	if md.SiteName == "" && base != nil {
		md.SiteName = strings.TrimPrefix(base.Hostname(), "www.")
	}
	return md, nil
}

func setOnce(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(u).String()
}
