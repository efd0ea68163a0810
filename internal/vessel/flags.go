package vessel

import "strings"

// 国内旗分类表：用于判定船舶是否为外轮（外轮才纳入
// foreign-report 与到港窗口统计）。
var domesticFlags = map[string]struct{}{
	"cn":        {},
	"chn":       {},
	"china":     {},
	"中国":        {},
	"hong kong": {},
	"hk":        {},
	"hkg":       {},
	"中国香港":      {},
	"macao":     {},
	"mo":        {},
	"mac":       {},
	"中国澳门":      {},
}

// IsDomesticFlag reports whether the registry flag classifies as domestic.
// Unknown/empty flags count as domestic so foreign-only rules stay quiet
// rather than firing on bad data.
func IsDomesticFlag(flag string) bool {
	key := strings.ToLower(strings.TrimSpace(flag))
	if key == "" {
		return true
	}
	_, ok := domesticFlags[key]
	return ok
}
