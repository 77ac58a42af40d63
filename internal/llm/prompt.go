package llm

import (
	"fmt"
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/constants"
)

// maxPromptText bounds the OCR text sent to a provider.
const maxPromptText = 6000

const extractionSystemPrompt = "You are a precise data extraction assistant that only returns valid JSON."

const raceLookupSystemPrompt = "You are a meticulous research assistant who returns only valid JSON objects and includes verifiable information when possible."

// BuildSystemPrompt returns the system message for structured extraction.
func BuildSystemPrompt() string {
	return extractionSystemPrompt
}

// BuildExtractionPrompt composes the instruction block: output shape, the
// canonical type vocabulary, formation expansion and the no-guess policy.
func BuildExtractionPrompt(documentType string) string {
	parts := []string{
		"以下の馬券明細テキストから、券種ごとの買い目一覧、レース情報、払戻金などを抽出してください。",
		"JSON でのみ回答し、以下の形式を厳守してください:",
		`{"date":"YYYY-MM-DD or null","source":"即pat|Spat4|紙馬券|null","track":"競馬場名 or null","raceName":"レース名 or null","payout":number,"bets":[{"type":"券種","numbers":["1","2"],"amount":number,"payout":number}],"memo":null}`,
		"券種は次のいずれかに正規化してください: " + strings.Join(constants.BetTypeStrings(), ", ") + "。",
		"numbers は馬番(または枠番)の文字列配列です。単勝・複勝は1つ、3連複・3連単は3つ、それ以外は2つです。",
		"フォーメーションや流しの場合は、着順ごとの候補から全ての組み合わせを展開し、同じ馬番を含む組み合わせは除外してください。",
		"合計金額のみが記載され各組み合わせで均等の場合は、金額を組み合わせ数で割って各 bets に設定してください。",
		"金額は円単位の整数です。読み取れない数値は 0、読み取れない項目は null にしてください。推測で値を作らないでください。",
	}
	if t := strings.TrimSpace(documentType); t != "" {
		parts = append(parts, "明細全体の券種は「"+t+"」と推定されています。")
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt appends the (truncated) ticket text to the instructions.
func BuildUserPrompt(req ExtractRequest) string {
	text := strings.TrimSpace(req.Text)
	var b strings.Builder
	b.WriteString(BuildExtractionPrompt(req.DocumentType))
	b.WriteString("\n\nテキスト:\n")
	if r := []rune(text); len(r) > maxPromptText {
		b.WriteString(string(r[:maxPromptText]))
		b.WriteString("\n…(truncated)")
	} else {
		b.WriteString(text)
	}
	return b.String()
}

// BuildRaceLookupSystemPrompt returns the system message for race-name lookup.
func BuildRaceLookupSystemPrompt() string {
	return raceLookupSystemPrompt
}

// BuildRaceLookupPrompt asks for {"raceName": string|null} with an (nR) suffix.
func BuildRaceLookupPrompt(req RaceLookupRequest) string {
	return strings.Join([]string{
		"以下の条件に該当する日本の競馬レース名を特定してください。",
		"- 日付: " + req.Date,
		"- 競馬場: " + req.Track,
		fmt.Sprintf("- レース番号: %dR", req.RaceNumber),
		"同日に同じ競馬場で開催されたレースの正式名称を、過去の公表情報を参考にして回答してください。",
		"出力要件:",
		`- JSON でのみ回答し、次の形式に従ってください: {"raceName": string | null}.`,
		fmt.Sprintf("- レース名が判明した場合は、末尾に (%dR) を付与してください。", req.RaceNumber),
		"- 判明しない場合や情報が存在しない場合は raceName を null にしてください。",
		"- 推測で存在しない名称を作成しないでください。",
	}, "\n")
}
