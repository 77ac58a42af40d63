package llm

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// StructuredResponse is the validated provider output.
type StructuredResponse struct {
	Date     *string            `json:"date"`
	Source   *string            `json:"source"`
	Track    *string            `json:"track"`
	RaceName *string            `json:"raceName"`
	Payout   *int64             `json:"payout"`
	Memo     *string            `json:"memo"`
	Bets     []StructuredTicket `json:"bets"`
}

// StructuredTicket is one ticket as a provider reports it.
type StructuredTicket struct {
	Type    string   `json:"type"`
	Numbers []string `json:"numbers"`
	Amount  int64    `json:"amount"`
	Payout  int64    `json:"payout"`
}

// DecodeStructured turns raw completion content into an ExtractionResult:
// fence stripping, synonym/number coercion, schema validation (with an
// optional lenient retry) and conversion to tickets. Every failure wraps
// ErrMalformedResponse.
func DecodeStructured(content string, lenient bool, logger *zap.Logger) (*entity.ExtractionResult, []byte, error) {
	logger = common.LoggerOrGlobal(logger)

	body := StripCodeFences(content)
	if body == "" {
		return nil, nil, eris.Wrap(ErrMalformedResponse, "llm: empty content")
	}

	normalized, _, err := NormalizeAndSanitizeJSON([]byte(body), logger)
	if err != nil {
		logger.Warn("llm.extract.decode_error", zap.Error(err), zap.String("content", truncate(body, 512)))
		return nil, []byte(body), eris.Wrapf(ErrMalformedResponse, "llm: decode: %v", err)
	}

	schema := BuildStructuredSchema()
	if err := ValidateJSONAgainstSchema(schema, normalized); err != nil {
		if !lenient {
			logger.Warn("llm.extract.schema_validation_failed", zap.Error(err))
			return nil, normalized, eris.Wrapf(ErrMalformedResponse, "llm: schema: %v", err)
		}
		cleaned, dropped, sErr := SanitizeOptionalFields(normalized)
		if sErr != nil {
			logger.Warn("llm.extract.sanitize_failed", zap.Error(sErr))
			return nil, normalized, eris.Wrapf(ErrMalformedResponse, "llm: sanitize: %v", sErr)
		}
		if vErr := ValidateJSONAgainstSchema(schema, cleaned); vErr != nil {
			logger.Warn("llm.extract.schema_validation_failed", zap.Error(vErr))
			return nil, cleaned, eris.Wrapf(ErrMalformedResponse, "llm: schema: %v", vErr)
		}
		logger.Info("llm.extract.lenient_sanitize_applied", zap.Strings("dropped", dropped))
		normalized = cleaned
	}

	var resp StructuredResponse
	if err := json.Unmarshal(normalized, &resp); err != nil {
		return nil, normalized, eris.Wrapf(ErrMalformedResponse, "llm: unmarshal: %v", err)
	}
	res := resp.ToExtractionResult()
	return &res, normalized, nil
}

// ToExtractionResult canonicalises types and joins selections the same way
// local tickets are keyed. Unknown types become 不明.
func (r StructuredResponse) ToExtractionResult() entity.ExtractionResult {
	res := entity.NewExtractionResult()
	res.Date = r.Date
	res.Track = r.Track
	res.RaceName = r.RaceName
	res.Payout = r.Payout
	res.Memo = r.Memo
	if r.Source != nil {
		res.Source = constants.ParseSource(strings.TrimSpace(*r.Source))
	}
	for _, t := range r.Bets {
		betType, _ := constants.Canonicalize(t.Type)
		if len(t.Numbers) == 0 {
			continue
		}
		res.Bets = append(res.Bets, entity.Ticket{
			Type:       betType,
			Numbers:    betType.JoinNumbers(t.Numbers),
			Amount:     t.Amount,
			Payout:     t.Payout,
			Provenance: entity.ProvenanceAI,
		})
	}
	return res
}

// DecodeRaceName parses {"raceName": string|null}. Blank names are nil.
func DecodeRaceName(content string) (*string, error) {
	body := StripCodeFences(content)
	if err := ValidateJSONAgainstSchema(BuildRaceLookupSchema(), []byte(body)); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "llm: race lookup: %v", err)
	}
	var out struct {
		RaceName *string `json:"raceName"`
	}
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, eris.Wrapf(ErrMalformedResponse, "llm: race lookup: %v", err)
	}
	if out.RaceName == nil || strings.TrimSpace(*out.RaceName) == "" {
		return nil, nil
	}
	name := strings.TrimSpace(*out.RaceName)
	return &name, nil
}
