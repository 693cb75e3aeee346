package portal

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// savedCookie is the on-disk shape of one session cookie.
type savedCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"http_only"`
	SameSite string  `json:"same_site,omitempty"`
}

// restoreCookies injects the saved snapshot into the browser. Returns false
// without error when no snapshot exists yet.
func (s *Session) restoreCookies() (bool, error) {
	if s.cfg.SessionFile == "" {
		return false, nil
	}

	data, err := os.ReadFile(s.cfg.SessionFile)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session file: %w", err)
	}

	var cookies []savedCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return false, fmt.Errorf("session file %s is not valid: %w", s.cfg.SessionFile, err)
	}
	if len(cookies) == 0 {
		return false, nil
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, 15*time.Second)
	defer cancel()

	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, cookie := range cookies {
			setter := network.SetCookie(cookie.Name, cookie.Value).
				WithDomain(cookie.Domain).
				WithPath(cookie.Path).
				WithSecure(cookie.Secure).
				WithHTTPOnly(cookie.HTTPOnly)
			if cookie.SameSite != "" {
				setter = setter.WithSameSite(network.CookieSameSite(cookie.SameSite))
			}
			if cookie.Expires > 0 {
				expiry := cdp.TimeSinceEpoch(time.Unix(int64(cookie.Expires), 0))
				setter = setter.WithExpires(&expiry)
			}
			if err := setter.Do(ctx); err != nil {
				return fmt.Errorf("failed to set cookie %s: %w", cookie.Name, err)
			}
		}
		return nil
	}))
	if err != nil {
		return false, err
	}
	return true, nil
}

// snapshotCookies writes the browser's current cookies so the next run can
// skip the manual login.
func (s *Session) snapshotCookies() error {
	if s.cfg.SessionFile == "" {
		return nil
	}

	runCtx, cancel := context.WithTimeout(s.browserCtx, 15*time.Second)
	defer cancel()

	var browserCookies []*network.Cookie
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := network.GetCookies().WithURLs([]string{s.cfg.URL}).Do(ctx)
		if err != nil {
			return err
		}
		browserCookies = cookies
		return nil
	}))
	if err != nil {
		return fmt.Errorf("failed to read browser cookies: %w", err)
	}

	saved := make([]savedCookie, 0, len(browserCookies))
	for _, cookie := range browserCookies {
		saved = append(saved, savedCookie{
			Name:     cookie.Name,
			Value:    cookie.Value,
			Domain:   cookie.Domain,
			Path:     cookie.Path,
			Expires:  cookie.Expires,
			Secure:   cookie.Secure,
			HTTPOnly: cookie.HTTPOnly,
			SameSite: string(cookie.SameSite),
		})
	}

	data, err := json.MarshalIndent(saved, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session snapshot: %w", err)
	}
	if err := os.WriteFile(s.cfg.SessionFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file %s: %w", s.cfg.SessionFile, err)
	}
	return nil
}
