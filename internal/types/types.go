package types

// Tab represents a single browser tab as reported by the extension.
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	GroupID  int    `json:"groupId"` // NoGroup if ungrouped
	Title    string `json:"title"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
	Index    int    `json:"index"`
}

// NoGroup is the sentinel group id the tabGroups API uses for ungrouped tabs.
const NoGroup = -1

// Grouped reports whether the tab belongs to a tab group.
func (t Tab) Grouped() bool {
	return t.GroupID > 0
}

// Group represents a browser tab group.
type Group struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	Title    string `json:"title"`
	Color    string `json:"color"`
}

// Metadata is normalized page metadata for a single video tab.
// Produced by the content-side scraper; see metadata.Normalize.
type Metadata struct {
	Title           string   `json:"title"`
	Channel         string   `json:"channel"`
	Description     string   `json:"description"`
	Keywords        []string `json:"keywords"`
	YouTubeCategory string   `json:"youtubeCategory"` // empty if unknown
}

// GroupColors is the tabGroups API color palette.
var GroupColors = []string{
	"grey", "blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange",
}

// ValidColor reports whether c is a color the tabGroups API accepts.
func ValidColor(c string) bool {
	for _, v := range GroupColors {
		if v == c {
			return true
		}
	}
	return false
}
