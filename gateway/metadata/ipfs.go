package metadata

import (
	"net/url"
	"regexp"
	"strings"
)

var cidPattern = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}.*)$`)

func IsUrl(uri string) bool {
	u, err := url.Parse(uri)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// ResolveURI は ipfs:// や CID のみの URI を HTTP ゲートウェイ経由の URL に書き換える。
// それ以外はそのまま返す。
func ResolveURI(uri string, gateway string) string {
	uri = strings.TrimSpace(uri)
	if gateway == "" {
		return uri
	}
	if !strings.HasSuffix(gateway, "/") {
		gateway += "/"
	}

	if strings.HasPrefix(uri, "ipfs://") {
		path := strings.TrimPrefix(uri, "ipfs://")
		path = strings.TrimPrefix(path, "ipfs/")
		return gateway + path
	}

	if parts := cidPattern.FindStringSubmatch(uri); len(parts) == 2 {
		return gateway + parts[1]
	}

	return uri
}
