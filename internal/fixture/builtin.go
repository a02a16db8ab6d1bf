package fixture

import (
	"sort"

	"grimm.is/adderprobe/internal/protocol"
)

// rejectedSchemes are the URL schemes curl knows besides https.
// The helper only downloads over https.
var rejectedSchemes = []string{
	"dict", "file", "ftp", "ftps", "gopher", "gophers", "http",
	"imap", "imaps", "ldap", "ldaps", "mqtt", "pop3", "pop3s",
	"rtmp", "rtmps", "rtsp", "scp", "sftp", "smb", "smbs",
	"smtp", "smtps", "telnet", "tftp", "ws", "wss",
}

// Builtin returns the built-in suites sorted by name.
func Builtin() []Suite {
	suites := []Suite{
		{
			Name: "Example",
			Steps: []protocol.Document{
				{MetaName: "Success", MetaSuccess: true, "artworks": []any{}},
				{MetaName: "Failure", MetaSuccess: false, "artworks": map[string]any{}},
			},
		},
		{
			Name: "Dangling links",
			Steps: []protocol.Document{
				{
					MetaName:    "Account link to unknown artwork",
					MetaSuccess: false,
					"accounts":  []any{map[string]any{"id": "dangling-account", "name": "dangling"}},
					"art_acc_links": []any{map[string]any{
						"artwork": "https://example.com/no-such-artwork",
						"account": "dangling-account",
						"link":    "account",
					}},
				},
				{
					MetaName:    "Tag link to unknown artwork",
					MetaSuccess: false,
					"tags":      []any{map[string]any{"id": "dangling-tag"}},
					"art_tag_links": []any{map[string]any{
						"artwork": "https://example.com/no-such-artwork",
						"tag":     "dangling-tag",
					}},
				},
			},
		},
		rejectSchemeSuite(),
	}
	sort.Slice(suites, func(i, j int) bool { return suites[i].Name < suites[j].Name })
	return suites
}

func rejectSchemeSuite() Suite {
	s := Suite{Name: "Reject bad scheme"}
	for _, scheme := range rejectedSchemes {
		s.Steps = append(s.Steps, protocol.Document{
			MetaName:    scheme,
			MetaSuccess: false,
			"artworks":  []any{map[string]any{"source": "dummy", "data": scheme + "://example.com"}},
		})
	}
	return s
}

// Lookup returns the built-in suite with the given name.
func Lookup(name string) (Suite, bool) {
	for _, s := range Builtin() {
		if s.Name == name {
			return s, true
		}
	}
	return Suite{}, false
}
