package cloner

import (
	"context"
	"encoding/xml"
	"fmt"

	"github.com/sirupsen/logrus"
)

// urlSet mirrors the <urlset> document of the sitemap protocol.
type urlSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// sitemapIndex mirrors a <sitemapindex> document pointing at child sitemaps.
type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fetchSitemap returns the page URLs listed in a sitemap. A sitemap index
// is followed one level deep; nested indexes are not expected in practice.
func (c *Cloner) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, error) {
	return c.fetchSitemapDepth(ctx, sitemapURL, 0)
}

func (c *Cloner) fetchSitemapDepth(ctx context.Context, sitemapURL string, depth int) ([]string, error) {
	body, _, err := c.fetch(ctx, sitemapURL)
	if err != nil {
		return nil, fmt.Errorf("fetching sitemap %s: %w", sitemapURL, err)
	}

	var set urlSet
	if err := xml.Unmarshal(body, &set); err == nil && len(set.URLs) > 0 {
		urls := make([]string, 0, len(set.URLs))
		for _, u := range set.URLs {
			if u.Loc != "" {
				urls = append(urls, u.Loc)
			}
		}
		return urls, nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(body, &idx); err != nil || len(idx.Sitemaps) == 0 {
		return nil, fmt.Errorf("sitemap %s: no <url> or <sitemap> entries", sitemapURL)
	}
	if depth >= 1 {
		return nil, fmt.Errorf("sitemap %s: nested sitemap index", sitemapURL)
	}

	var urls []string
	for _, child := range idx.Sitemaps {
		childURLs, err := c.fetchSitemapDepth(ctx, child.Loc, depth+1)
		if err != nil {
			logrus.WithError(err).WithField("sitemap", child.Loc).Warn("skipping child sitemap")
			continue
		}
		urls = append(urls, childURLs...)
	}
	return urls, nil
}
