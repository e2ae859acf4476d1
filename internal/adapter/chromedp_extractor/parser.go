package chromedp_extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/user/leadflow-service/internal/entity"
	"github.com/user/leadflow-service/pkg/utils"
)

const (
	feedSelector    = `div[role="feed"]`
	cardSelector    = `div.Nv2PK`
	nameSelector    = `.qBF1Pd`
	placeSelector   = `a.hfpxzc`
	infoSelector    = `.W4Efsd`
	websiteSelector = `a[data-value="Website"]`
)

// ParseResults extracts at most maxResults leads from the HTML of a maps
// result feed. Cards without a name are skipped and duplicates are dropped.
func ParseResults(htmlContent string, maxResults int) ([]entity.Lead, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlContent))
	if err != nil {
		return nil, err
	}

	leads := []entity.Lead{}
	seen := make(map[string]struct{})

	doc.Find(cardSelector).EachWithBreak(func(i int, card *goquery.Selection) bool {
		if len(leads) >= maxResults {
			return false
		}

		place := card.Find(placeSelector).First()
		name := strings.TrimSpace(card.Find(nameSelector).First().Text())
		if name == "" {
			name = strings.TrimSpace(place.AttrOr("aria-label", ""))
		}
		if name == "" {
			return true
		}

		href := place.AttrOr("href", "")
		key := href
		if key == "" {
			key = name
		}
		id := utils.HashURL(key)
		if _, dup := seen[id]; dup {
			return true
		}
		seen[id] = struct{}{}

		category, address := parseInfo(card)
		leads = append(leads, entity.Lead{
			ID:       id,
			Name:     name,
			Address:  address,
			Website:  strings.TrimSpace(card.Find(websiteSelector).First().AttrOr("href", "")),
			Category: category,
		})
		return true
	})

	return leads, nil
}

// parseInfo reads the first "category · address" line of a card.
func parseInfo(card *goquery.Selection) (category, address string) {
	card.Find(infoSelector).EachWithBreak(func(i int, s *goquery.Selection) bool {
		text := s.Text()
		if !strings.Contains(text, "·") {
			return true
		}
		var parts []string
		for _, p := range strings.Split(text, "·") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if len(parts) == 0 {
			return true
		}
		category = parts[0]
		if len(parts) > 1 {
			address = parts[len(parts)-1]
		}
		return false
	})
	return category, address
}
