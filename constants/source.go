package constants

// Source is where a ticket was purchased.
type Source string

const (
	SourceSokuPAT Source = "即pat"
	SourceSpat4   Source = "Spat4"
	SourcePaper   Source = "紙馬券"
	SourceUnknown Source = "unknown"
)

// ParseSource accepts the labels produced by extractors and AI output.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceSokuPAT, SourceSpat4, SourcePaper:
		return Source(s)
	}
	switch s {
	case "SPAT4", "spat4":
		return SourceSpat4
	case "即PAT", "iPAT", "ipat":
		return SourceSokuPAT
	}
	return SourceUnknown
}
