package constants

// Tracks lists the JRA and regional courses recognised on tickets.
var Tracks = []string{
	"大井",
	"川崎",
	"船橋",
	"浦和",
	"東京",
	"中山",
	"阪神",
	"京都",
	"中京",
	"新潟",
	"福島",
	"小倉",
	"札幌",
	"函館",
	"園田",
	"姫路",
	"門別",
	"盛岡",
	"水沢",
	"金沢",
	"笠松",
	"名古屋",
	"帯広",
	"高知",
	"佐賀",
}

// IsKnownTrack reports whether name is one of Tracks.
func IsKnownTrack(name string) bool {
	for _, t := range Tracks {
		if t == name {
			return true
		}
	}
	return false
}
