package mahadiscom

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Consumer identifies the account a bill belongs to.
type Consumer struct {
	Name   string
	Number string
}

// Complete reports whether both fields were found.
func (c Consumer) Complete() bool {
	return c.Name != "" && c.Number != ""
}

// ParseConsumer reads the "Consumer No." and "Consumer Name" label rows of the bill page.
func ParseConsumer(html string) (Consumer, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Consumer{}, fmt.Errorf("failed to parse bill page: %w", err)
	}

	var c Consumer
	doc.Find("td.tdLabel").Each(func(_ int, label *goquery.Selection) {
		value := normalizeSpace(label.NextAllFiltered("td").First().Text())
		text := label.Text()
		switch {
		case c.Number == "" && strings.Contains(text, "Consumer No."):
			c.Number = value
		case c.Name == "" && strings.Contains(text, "Consumer Name"):
			c.Name = value
		}
	})
	return c, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
