// Package status 把列表快照投影为两种视图：名单视图和状态视图。
// 投影是纯函数，同一份快照总是得到相同的结果。
package status

import (
	"fmt"
	"strings"

	"github.com/SlpAus/rollback-tracker/internal/store"
)

// PreviewLength 是状态视图中回档预览的最大字符数
const PreviewLength = 150

const (
	MarkerSubmitted = "✅"
	MarkerMissing   = "❌"
	StatusSubmitted = "🟢"
	StatusMissing   = "🔴"

	emptyRoster = "*Список участников пуст*"
)

// RosterEntry 是名单视图中的一行
type RosterEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	HasRollback bool   `json:"hasRollback"`
	Marker      string `json:"marker"`
}

// StatusEntry 是状态视图中的一个参与者
type StatusEntry struct {
	UserID      string `json:"userId"`
	Marker      string `json:"marker"`
	DisplayName string `json:"displayName"`
	HasRollback bool   `json:"hasRollback"`
	Preview     string `json:"preview,omitempty"`
	Truncated   bool   `json:"truncated,omitempty"`
}

// StatusView 是状态视图
type StatusView struct {
	ListID    string        `json:"listId"`
	Name      string        `json:"name"`
	Total     int           `json:"total"`
	Completed int           `json:"completed"`
	Entries   []StatusEntry `json:"entries"`
}

// View 同时包含两种视图
type View struct {
	Roster []RosterEntry `json:"roster"`
	Status StatusView    `json:"status"`
}

// Project 根据快照计算视图。参与者顺序沿用快照中的登记顺序。
func Project(snap *store.Snapshot) View {
	v := View{
		Roster: make([]RosterEntry, 0, len(snap.Participants)),
		Status: StatusView{
			ListID:  snap.List.ID,
			Name:    snap.List.Name,
			Total:   len(snap.Participants),
			Entries: make([]StatusEntry, 0, len(snap.Participants)),
		},
	}

	texts := make(map[string]string, len(snap.Rollbacks))
	for _, r := range snap.Rollbacks {
		texts[r.UserID] = r.Text
	}

	for _, p := range snap.Participants {
		entry := RosterEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			HasRollback: p.HasRollback,
			Marker:      MarkerMissing,
		}
		st := StatusEntry{
			UserID:      p.UserID,
			Marker:      StatusMissing,
			DisplayName: p.DisplayName,
			HasRollback: p.HasRollback,
		}
		if p.HasRollback {
			entry.Marker = MarkerSubmitted
			st.Marker = StatusSubmitted
			v.Status.Completed++
			st.Preview, st.Truncated = preview(texts[p.UserID])
		}
		v.Roster = append(v.Roster, entry)
		v.Status.Entries = append(v.Status.Entries, st)
	}
	return v
}

// preview 截取前 PreviewLength 个字符，超出时追加省略号
func preview(text string) (string, bool) {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text, false
	}
	return string(runes[:PreviewLength]) + "...", true
}

// RenderRoster 渲染名单视图：每行一个标记和用户提及
func RenderRoster(v View) string {
	if len(v.Roster) == 0 {
		return emptyRoster
	}
	lines := make([]string, len(v.Roster))
	for i, e := range v.Roster {
		lines[i] = fmt.Sprintf("%s <@%s>", e.Marker, e.UserID)
	}
	return strings.Join(lines, "\n")
}

// RenderStatus 渲染状态视图：标题、统计，以及每个参与者的状态和回档预览
func RenderStatus(v View) string {
	s := v.Status
	var b strings.Builder
	fmt.Fprintf(&b, "📊 **СТАТУС ОТКАТОВ: %s**\n\n", s.Name)
	fmt.Fprintf(&b, "📋 ID списка: `%s`\n", s.ListID)
	fmt.Fprintf(&b, "👥 Всего участников: **%d**\n", s.Total)
	fmt.Fprintf(&b, "✅ Отправили откат: **%d** / **%d**\n", s.Completed, s.Total)
	b.WriteString(strings.Repeat("=", 50))
	b.WriteString("\n\n")

	if len(s.Entries) == 0 {
		b.WriteString(emptyRoster)
		b.WriteString("\n")
		return b.String()
	}
	for _, e := range s.Entries {
		fmt.Fprintf(&b, "%s **%s**\n", e.Marker, e.DisplayName)
		if e.Preview != "" {
			fmt.Fprintf(&b, "  └ 📝 %s\n", e.Preview)
		}
		b.WriteString("\n")
	}
	return b.String()
}
