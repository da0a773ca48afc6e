package browser

import (
	"net/url"
	"strings"
)

// Blocklist решает, какие запросы страницы отклонить: тяжёлые ресурсы
// (картинки, шрифты...) и трекеры/реклама по домену.
type Blocklist struct {
	resources map[string]struct{}
	domains   []string
}

func NewBlocklist(resourceTypes, domains []string) *Blocklist {
	bl := &Blocklist{resources: make(map[string]struct{}, len(resourceTypes))}
	for _, rt := range resourceTypes {
		bl.resources[strings.ToLower(rt)] = struct{}{}
	}
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			bl.domains = append(bl.domains, d)
		}
	}
	return bl
}

// Blocked: resourceType в формате CDP ("Image", "Stylesheet", ...).
func (bl *Blocklist) Blocked(resourceType string, u *url.URL) bool {
	if _, ok := bl.resources[strings.ToLower(resourceType)]; ok {
		return true
	}
	if u == nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range bl.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
