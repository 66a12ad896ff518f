// Package localization serves the portal's visitor-facing text in the
// visitor's language.
package localization

import (
	"embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/Genosoo/expoasia-web-app"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type LocalizationService struct {
	bundle *i18n.Bundle
}

var (
	globalService *LocalizationService
	once          sync.Once
)

// NewLocalizationService returns the process-wide service, loading the
// embedded locales on first use.
func NewLocalizationService() *LocalizationService {
	once.Do(func() {
		bundle := i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

		entries, err := localeFS.ReadDir("locales")
		if err != nil {
			slog.Error("can't list embedded locales", "err", err)
		}

		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".json") || name == "manifest.json" {
				continue
			}

			if _, err := bundle.LoadMessageFileFS(localeFS, "locales/"+name); err != nil {
				slog.Error("can't load locale", "file", name, "err", err)
			}
		}

		globalService = &LocalizationService{bundle: bundle}
	})

	return globalService
}

func (ls *LocalizationService) GetLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(ls.bundle, append(langs, "en")...)
}

// GetLocalizerFromRequest honours expoasia.ForcedLanguage, then the lang
// query parameter, then Accept-Language.
func (ls *LocalizationService) GetLocalizerFromRequest(r *http.Request) *i18n.Localizer {
	if expoasia.ForcedLanguage != "" {
		return ls.GetLocalizer(expoasia.ForcedLanguage)
	}

	return ls.GetLocalizer(r.URL.Query().Get("lang"), r.Header.Get("Accept-Language"))
}

// Languages lists the tags the bundle has messages for.
func (ls *LocalizationService) Languages() []language.Tag {
	return ls.bundle.LanguageTags()
}

// SimpleLocalizer wraps i18n.Localizer with a more convenient API
type SimpleLocalizer struct {
	Localizer *i18n.Localizer
}

// T localizes messageID. An unknown ID comes back unchanged so a missing
// translation never breaks a page.
func (sl *SimpleLocalizer) T(messageID string) string {
	return sl.TData(messageID, nil)
}

// TData localizes messageID with template data.
func (sl *SimpleLocalizer) TData(messageID string, data map[string]any) string {
	result, err := sl.Localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		var notFound *i18n.MessageNotFoundErr
		if !errors.As(err, &notFound) {
			slog.Debug("can't localize message", "id", messageID, "err", err)
		}
		if result == "" {
			return messageID
		}
	}

	return result
}

// Has reports whether messageID exists in any language.
func (sl *SimpleLocalizer) Has(messageID string) bool {
	_, err := sl.Localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	return err == nil
}

// Lang is the language tag the page should declare.
func (sl *SimpleLocalizer) Lang() string {
	_, tag, err := sl.Localizer.LocalizeWithTag(&i18n.LocalizeConfig{MessageID: "page_title"})
	if err != nil || tag == language.Und {
		return "en"
	}
	return tag.String()
}

// GetLocalizer creates a localizer for r.
func GetLocalizer(r *http.Request) *SimpleLocalizer {
	localizer := NewLocalizationService().GetLocalizerFromRequest(r)
	return &SimpleLocalizer{Localizer: localizer}
}
