package i18n

import (
	"embed"
	"encoding/json"
	"path"

	"ResQLink/pkg/logger"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// I18nSupport 国际化支持结构体
type I18nSupport struct {
	bundle      *i18n.Bundle
	defaultLang string
	matcher     language.Matcher
}

// NewI18nSupport 初始化国际化支持，语言文件随二进制一起嵌入
func NewI18nSupport(defaultLang string) (*I18nSupport, error) {
	tag, err := language.Parse(defaultLang)
	if err != nil {
		return nil, err
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		buf, err := localeFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, e.Name()); err != nil {
			return nil, err
		}
	}

	// 默认语言放在首位，匹配失败时回落
	tags := []language.Tag{tag}
	for _, t := range bundle.LanguageTags() {
		if t != tag {
			tags = append(tags, t)
		}
	}

	return &I18nSupport{
		bundle:      bundle,
		defaultLang: tag.String(),
		matcher:     language.NewMatcher(tags),
	}, nil
}

// Match 根据 Accept-Language 或 lang 参数选出支持的语言
func (i *I18nSupport) Match(accept ...string) string {
	if i == nil {
		return "en"
	}
	tag, _ := language.MatchStrings(i.matcher, accept...)
	base, _ := tag.Base()
	return base.String()
}

// T 获取翻译文本，找不到时返回 fallback（为空则返回 key）
func (i *I18nSupport) T(languageTag, key, fallback string) string {
	if i == nil {
		return orKey(fallback, key)
	}
	localizer := i18n.NewLocalizer(i.bundle, languageTag, i.defaultLang)

	translation, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: key})
	if err != nil {
		logger.Debug("translation missing", zap.String("key", key), zap.String("lang", languageTag), zap.Error(err))
		return orKey(fallback, key)
	}
	return translation
}

func orKey(fallback, key string) string {
	if fallback != "" {
		return fallback
	}
	return key
}
