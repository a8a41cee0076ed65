package middleware

import (
	"ResQLink/pkg/i18n"

	"github.com/gin-gonic/gin"
)

// LangKey gin 上下文中保存语言的键
const LangKey = "lang"

// LanguageMiddleware 优先 ?lang=，其次 Accept-Language
func LanguageMiddleware(i18nSupport *i18n.I18nSupport) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(LangKey, i18nSupport.Match(c.Query("lang"), c.GetHeader("Accept-Language")))
		c.Next()
	}
}

// Lang 读取请求语言，默认 en
func Lang(c *gin.Context) string {
	if v := c.GetString(LangKey); v != "" {
		return v
	}
	return "en"
}
