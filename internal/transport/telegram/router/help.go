package router

import (
	"html"
	"sort"
	"strings"
)

// helpText lists the commands visible to userID, as Telegram HTML.
func (m *Manager) helpText(userID int64) string {
	m.mu.RLock()
	seen := map[*Command]bool{}
	cmds := make([]*Command, 0, len(m.cmds))
	for _, c := range m.cmds {
		if c.Hidden || seen[c] || !m.allowed(c.Access, userID) {
			continue
		}
		seen[c] = true
		cmds = append(cmds, c)
	}
	m.mu.RUnlock()

	sort.Slice(cmds, func(i, j int) bool {
		if cmds[i].Access != cmds[j].Access {
			return cmds[i].Access < cmds[j].Access
		}
		return cmds[i].Name < cmds[j].Name
	})

	lines := []string{"<b>Команды</b>"}
	for _, c := range cmds {
		usage := strings.TrimSpace(c.Usage)
		if usage == "" {
			usage = "/" + c.Name
		}
		line := "• <code>" + html.EscapeString(usage) + "</code>"
		if d := strings.TrimSpace(c.Description); d != "" {
			line += " - " + html.EscapeString(d)
		}
		if c.Access != AccessEveryone {
			line = "• 🔒" + strings.TrimPrefix(line, "•")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
