package notifier

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/bwmarrin/discordgo"

	"modwatch/internal/feed"
)

const (
	untitled = "Untitled Mod"
	unknown  = "Unknown"
)

// Payload builds the webhook body for item.
func Payload(item feed.Item, cfg Config) *discordgo.WebhookParams {
	cfg = cfg.withDefaults()

	embed := &discordgo.MessageEmbed{
		Title:       "🆕 New Mod: " + orDefault(item.Name, untitled),
		Description: description(item),
		Color:       cfg.Color,
	}
	if img, ok := imageURL(item.ImageURL, cfg.StrictImageURL); ok {
		embed.Image = &discordgo.MessageEmbedImage{URL: img}
	}

	return &discordgo.WebhookParams{
		Username:   cfg.Username,
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{},
	}
}

func description(item feed.Item) string {
	return fmt.Sprintf("**Category:** %s\n**Version:** %s\n**Access:** %s\n**Uploaded:** %s",
		orDefault(item.Category, unknown),
		orDefault(item.Version, unknown),
		orDefault(item.Access, unknown),
		orDefault(item.UploadDate(), unknown),
	)
}

func imageURL(raw string, strict bool) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if !strict {
		return s, true
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return s, true
	default:
		return "", false
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
