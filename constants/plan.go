package constants

// UserRole is stored in profiles.user_role.
type UserRole string

const (
	RoleFree    UserRole = "free"
	RolePremium UserRole = "premium"
	RoleAdmin   UserRole = "admin"
)

// Plan describes what a role may do. Nil limits mean unlimited.
type Plan struct {
	Role            UserRole
	Label           string
	MaxBets         *int
	OCREnabled      bool
	AIAssistEnabled bool
	OCRMonthlyLimit *int
}

const FreeMaxBets = 200

const (
	MsgOCRDisabled      = "画像のOCR解析はプレミアムプラン限定の機能です。"
	MsgAIAssistDisabled = "AIによる買い目補助はプレミアムプラン限定の機能です。"
	MsgOCRLimitReached  = "FREEプランの月次上限に達しました"
	MsgMaxBetsFormat    = "保存できる馬券データはフリープランでは%d件までです。"
)

// ResolvePlan maps a stored role to its plan. Unknown or empty roles are free.
// freeOCRLimit > 0 enables OCR on the free plan with that monthly limit.
func ResolvePlan(role string, freeOCRLimit int) Plan {
	switch UserRole(role) {
	case RolePremium:
		return Plan{Role: RolePremium, Label: "プレミアムプラン", OCREnabled: true, AIAssistEnabled: true}
	case RoleAdmin:
		return Plan{Role: RoleAdmin, Label: "管理者", OCREnabled: true, AIAssistEnabled: true}
	}
	maxBets := FreeMaxBets
	p := Plan{Role: RoleFree, Label: "フリープラン", MaxBets: &maxBets}
	if freeOCRLimit > 0 {
		limit := freeOCRLimit
		p.OCREnabled = true
		p.OCRMonthlyLimit = &limit
	}
	return p
}
